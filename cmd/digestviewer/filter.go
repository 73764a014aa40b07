package main

import (
	"sync"

	"ai-video-digest-service/internal/events"
)

// latestFilter passes only events that advance the newest analysis. The
// partial and final topics are read independently, so events can arrive
// out of order.
type latestFilter struct {
	mu        sync.Mutex
	id        string
	seq       uint64
	timestamp int64
}

func (f *latestFilter) accept(e events.DigestEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.AnalysisID == f.id {
		if e.Seq <= f.seq {
			return false
		}
	} else if e.Timestamp < f.timestamp {
		return false
	}
	f.id, f.seq, f.timestamp = e.AnalysisID, e.Seq, e.Timestamp
	return true
}
