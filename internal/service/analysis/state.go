package analysis

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State represents the lifecycle state of a pipeline or of a whole analysis.
type State int

const (
	// StateIdle - No analysis has been started.
	StateIdle State = iota
	// StateRunning - Stream is open and updates are being published.
	StateRunning
	// StateDone - Stream reached its end successfully.
	StateDone
	// StateFailed - Stream could not be opened or ended abnormally.
	// This is a terminal state. Data already published is kept.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (DONE or FAILED).
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText encodes the state as its lower-case name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText decodes a state name as written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if strings.EqualFold(st.String(), string(text)) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Pipeline names one of the two streams of an analysis.
type Pipeline string

const (
	PipelineTranscript Pipeline = "transcript"
	PipelineSummary    Pipeline = "summary"
)

// Errors for invalid lifecycle transitions.
var (
	ErrPipelineTerminal = errors.New("pipeline already finished")
)

// Lifecycle manages the state machine for a single pipeline.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	RUNNING → DONE
//	   │
//	   └────→ FAILED
//
// Rules:
//   - RUNNING: updates may be published; Complete or Fail ends it (once)
//   - DONE, FAILED: terminal, no further updates or transitions
type Lifecycle struct {
	mu       sync.RWMutex
	pipeline Pipeline
	state    State
	err      error
	started  time.Time
	ended    time.Time
}

// NewLifecycle creates a pipeline lifecycle in RUNNING state.
func NewLifecycle(pipeline Pipeline) *Lifecycle {
	return &Lifecycle{
		pipeline: pipeline,
		state:    StateRunning,
		started:  time.Now(),
	}
}

// Pipeline returns the pipeline name.
func (l *Lifecycle) Pipeline() Pipeline {
	return l.pipeline
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the failure cause, nil unless FAILED.
func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// CanPublish returns true while the pipeline may publish updates.
func (l *Lifecycle) CanPublish() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning
}

// IsTerminal returns true once the pipeline is DONE or FAILED.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Duration returns how long the pipeline ran, or has been running.
func (l *Lifecycle) Duration() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ended.IsZero() {
		return time.Since(l.started)
	}
	return l.ended.Sub(l.started)
}

// Complete transitions RUNNING to DONE.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning {
		return fmt.Errorf("%w: %s is %s", ErrPipelineTerminal, l.pipeline, l.state)
	}
	l.state = StateDone
	l.ended = time.Now()
	return nil
}

// Fail transitions RUNNING to FAILED and records the cause.
// Returns true if the pipeline failed, false if already in a terminal state.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	l.err = err
	l.ended = time.Now()
	return true
}
