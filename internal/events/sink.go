package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-video-digest-service/internal/models"
	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/service/analysis"
)

// DigestEvent is the Kafka payload of one snapshot.
type DigestEvent struct {
	EventType        string                  `json:"eventType"`
	AnalysisID       string                  `json:"analysisId"`
	Target           string                  `json:"target"`
	Generation       uint64                  `json:"generation"`
	Seq              uint64                  `json:"seq"`
	Change           string                  `json:"change"`
	State            analysis.State          `json:"state"`
	InFlight         bool                    `json:"inFlight"`
	Blocks           []models.Block          `json:"blocks"`
	Index            models.Index            `json:"index"`
	Summary          string                  `json:"summary"`
	TranscriptStatus analysis.PipelineStatus `json:"transcriptStatus"`
	SummaryStatus    analysis.PipelineStatus `json:"summaryStatus"`
	Timestamp        int64                   `json:"timestamp"`
}

// NewDigestEvent builds the event of a snapshot.
func NewDigestEvent(s analysis.Snapshot) DigestEvent {
	eventType := EventTypePartial
	if IsFinal(s) {
		eventType = EventTypeFinal
	}
	return DigestEvent{
		EventType:        eventType,
		AnalysisID:       s.AnalysisID,
		Target:           s.Target,
		Generation:       s.Generation,
		Seq:              s.Seq,
		Change:           string(s.Event),
		State:            s.State,
		InFlight:         s.InFlight,
		Blocks:           s.Blocks,
		Index:            s.Index,
		Summary:          s.Summary,
		TranscriptStatus: s.TranscriptStatus,
		SummaryStatus:    s.SummaryStatus,
		Timestamp:        s.UpdatedAt.UnixMilli(),
	}
}

// IsFinal reports whether s is the terminal snapshot of its analysis.
func IsFinal(s analysis.Snapshot) bool {
	return !s.InFlight && s.State.IsTerminal()
}

// publisher is the part of *Publisher the sink uses.
type publisher interface {
	Publish(ctx context.Context, e DigestEvent) error
}

// Sink forwards analysis snapshots to Kafka from a background goroutine, so
// the analyzer never waits on the broker. When the queue is full the
// snapshot is dropped; the next one supersedes it anyway. Final snapshots
// are never dropped.
type Sink struct {
	pub     publisher
	queue   chan analysis.Snapshot
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int
	done    chan struct{}
}

// NewSink starts a sink with a queue of the given size.
func NewSink(pub publisher, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &Sink{
		pub:     pub,
		queue:   make(chan analysis.Snapshot, queueSize),
		timeout: 10 * time.Second,
		logger:  logging.WithComponent("kafka-sink"),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish enqueues a snapshot.
func (s *Sink) Publish(snap analysis.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if IsFinal(snap) {
		// Make room rather than lose the final snapshot.
		for {
			select {
			case s.queue <- snap:
				return
			default:
			}
			select {
			case <-s.queue:
				s.dropped++
			default:
			}
		}
	}

	select {
	case s.queue <- snap:
	default:
		s.dropped++
		s.logger.Warn().
			Str("analysisId", snap.AnalysisID).
			Uint64("seq", snap.Seq).
			Int("dropped", s.dropped).
			Msg("Kafka queue full, dropping snapshot")
	}
}

// Dropped returns the number of snapshots dropped so far.
func (s *Sink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting snapshots and waits until the queue is drained or
// ctx ends.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for snap := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.pub.Publish(ctx, NewDigestEvent(snap))
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("analysisId", snap.AnalysisID).Msg("Failed to publish snapshot")
		}
	}
}
