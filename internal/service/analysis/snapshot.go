package analysis

import (
	"time"

	"ai-video-digest-service/internal/models"
)

// Event says what changed in a snapshot relative to the previous one.
type Event string

const (
	EventReset      Event = "reset"
	EventTranscript Event = "transcript"
	EventSummary    Event = "summary"
	EventStatus     Event = "status"
	EventCanceled   Event = "canceled"
)

// PipelineStatus is the published state of one pipeline.
type PipelineStatus struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// Snapshot is the complete published state of the current analysis.
//
// A snapshot is never modified after it is published; every update builds
// a new one. Slices may be shared between successive snapshots and must be
// treated as read-only by sinks.
type Snapshot struct {
	AnalysisID string `json:"analysisId,omitempty"`
	Target     string `json:"target,omitempty"`
	Generation uint64 `json:"generation"`
	Seq        uint64 `json:"seq"`
	Event      Event  `json:"event,omitempty"`

	State    State `json:"state"`
	InFlight bool  `json:"inFlight"`

	Blocks  []models.Block `json:"blocks"`
	Index   models.Index   `json:"index"`
	Summary string         `json:"summary"`

	TranscriptStatus PipelineStatus `json:"transcriptStatus"`
	SummaryStatus    PipelineStatus `json:"summaryStatus"`

	StartedAt time.Time `json:"startedAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// emptySnapshot is the idle state before any analysis was started.
func emptySnapshot() Snapshot {
	return Snapshot{
		State:  StateIdle,
		Blocks: []models.Block{},
		Index:  models.Project(nil),
	}
}

// resetSnapshot is the first snapshot of a new analysis: no blocks, empty
// index and summary, both pipelines running.
func resetSnapshot(id, target string, generation uint64, now time.Time) Snapshot {
	s := emptySnapshot()
	s.AnalysisID = id
	s.Target = target
	s.Generation = generation
	s.Event = EventReset
	s.State = StateRunning
	s.InFlight = true
	s.TranscriptStatus = PipelineStatus{State: StateRunning}
	s.SummaryStatus = PipelineStatus{State: StateRunning}
	s.StartedAt = now
	s.UpdatedAt = now
	return s
}

// status returns the status of pipeline p.
func (s *Snapshot) status(p Pipeline) *PipelineStatus {
	if p == PipelineTranscript {
		return &s.TranscriptStatus
	}
	return &s.SummaryStatus
}

// derive recomputes the overall state and in-flight flag from both
// pipeline states. Failed wins as soon as either pipeline fails.
func (s *Snapshot) derive() {
	tr, su := s.TranscriptStatus.State, s.SummaryStatus.State
	s.InFlight = !tr.IsTerminal() || !su.IsTerminal()
	switch {
	case tr == StateFailed || su == StateFailed:
		s.State = StateFailed
	case s.InFlight:
		s.State = StateRunning
	default:
		s.State = StateDone
	}
}

// Sink receives every published snapshot.
//
// Publish is called with the analyzer's update lock held, one snapshot at a
// time and in publication order. It must not block for long and must not
// call back into the Analyzer.
type Sink interface {
	Publish(s Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(s Snapshot)

// Publish calls f.
func (f SinkFunc) Publish(s Snapshot) {
	f(s)
}
