// Package analysis runs the transcript and summary pipelines of a video
// analysis and publishes their combined progress as immutable snapshots.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/schema"
	"ai-video-digest-service/internal/service/source"
)

var (
	// ErrInvalidTarget is returned by Start for a target the validator rejects.
	ErrInvalidTarget = errors.New("invalid analysis target")
	// ErrCanceled is the failure cause of pipelines stopped by Cancel.
	ErrCanceled = errors.New("analysis canceled")
	// ErrLimitExceeded is the failure cause of a pipeline over its limits.
	ErrLimitExceeded = errors.New("pipeline limit exceeded")
)

// Limits bound the resources a single pipeline may use.
type Limits struct {
	MaxBytes    int64         // Max upstream bytes per pipeline
	MaxDuration time.Duration // Max pipeline duration
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    8 * 1024 * 1024, // 8MB of transcript JSON is several hours of video
		MaxDuration: 15 * time.Minute,
	}
}

// Config configures an Analyzer.
type Config struct {
	Transcripts source.TranscriptSource
	Summaries   source.SummarySource
	// Validate rejects malformed targets before anything is reset. Nil
	// accepts any non-empty target.
	Validate  func(target string) error
	Validator *schema.Validator
	Limits    Limits
	Metrics   *metrics.Metrics
}

// Analyzer owns the current analysis. Starting a new one abandons the
// previous one: its streams are canceled and any update it still produces
// is discarded by generation.
//
// All snapshot mutations and sink notifications happen under one lock, so
// sinks observe a single ordered sequence of snapshots even though the two
// pipelines run on separate goroutines.
type Analyzer struct {
	transcripts source.TranscriptSource
	summaries   source.SummarySource
	validate    func(string) error
	validator   *schema.Validator
	limits      Limits
	ids         *Generator
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	mu         sync.Mutex
	generation uint64
	snap       Snapshot
	run        *run
	sinks      []*sinkEntry
}

type sinkEntry struct {
	sink Sink
}

// run is one started analysis.
type run struct {
	id         string
	generation uint64
	target     string
	started    time.Time
	cancel     context.CancelFunc
	transcript *Lifecycle
	summary    *Lifecycle
	logger     zerolog.Logger
	done       chan struct{}
}

func (r *run) lifecycle(p Pipeline) *Lifecycle {
	if p == PipelineTranscript {
		return r.transcript
	}
	return r.summary
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	v := cfg.Validator
	if v == nil {
		v = schema.New()
	}
	return &Analyzer{
		transcripts: cfg.Transcripts,
		summaries:   cfg.Summaries,
		validate:    cfg.Validate,
		validator:   v,
		limits:      cfg.Limits,
		ids:         NewGenerator(),
		metrics:     m,
		logger:      logging.WithComponent("analyzer"),
		snap:        emptySnapshot(),
	}
}

// Subscribe registers a sink for every future snapshot. The returned
// function removes it.
func (a *Analyzer) Subscribe(s Sink) (unsubscribe func()) {
	e := &sinkEntry{sink: s}
	a.mu.Lock()
	a.sinks = append(a.sinks, e)
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, x := range a.sinks {
			if x == e {
				a.sinks = append(a.sinks[:i:i], a.sinks[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current snapshot.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// Start validates target, abandons any running analysis, publishes the
// empty reset snapshot and then starts both pipelines. The returned
// snapshot is the reset snapshot.
//
// The pipelines outlive ctx's cancellation; use Cancel to stop them.
func (a *Analyzer) Start(ctx context.Context, target string) (Snapshot, error) {
	if err := a.checkTarget(target); err != nil {
		return Snapshot{}, err
	}

	id := a.ids.Next()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:         id,
		target:     target,
		started:    time.Now(),
		cancel:     cancel,
		transcript: NewLifecycle(PipelineTranscript),
		summary:    NewLifecycle(PipelineSummary),
		logger:     logging.WithAnalysis(id, target),
		done:       make(chan struct{}),
	}

	a.mu.Lock()
	if prev := a.run; prev != nil {
		prev.cancel()
		if a.snap.InFlight {
			a.metrics.RecordAnalysisCanceled()
			prev.logger.Info().Msg("Analysis abandoned by a new start")
		}
	}
	// Generations are assigned under the lock so they follow the order in
	// which runs become current.
	a.generation++
	gen := a.generation
	r.generation = gen
	a.run = r
	a.snap = resetSnapshot(id, target, gen, r.started)
	a.publishLocked()
	snap := a.snap
	a.mu.Unlock()

	a.metrics.RecordAnalysisStart()
	r.logger.Info().Uint64("generation", gen).Msg("Analysis started")

	go a.execute(runCtx, r)
	return snap, nil
}

func (a *Analyzer) checkTarget(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}
	if a.validate == nil {
		return nil
	}
	if err := a.validate(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return nil
}

// Cancel stops the current analysis. Pipelines still running are marked
// failed with ErrCanceled and the data published so far is kept. Returns
// false if nothing was in flight.
func (a *Analyzer) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.run
	if r == nil || !a.snap.InFlight {
		return false
	}
	r.cancel()

	next := a.snap
	for _, p := range []Pipeline{PipelineTranscript, PipelineSummary} {
		if r.lifecycle(p).Fail(ErrCanceled) {
			*next.status(p) = PipelineStatus{State: StateFailed, Error: ErrCanceled.Error()}
		}
	}
	next.derive()
	next.Event = EventCanceled
	a.commitLocked(next)

	// No later update of r may be published.
	a.generation++
	a.metrics.RecordAnalysisCanceled()
	r.logger.Info().Msg("Analysis canceled")
	return true
}

// Wait blocks until the analysis that is current at call time has finished
// both pipelines, then returns the current snapshot.
func (a *Analyzer) Wait(ctx context.Context) (Snapshot, error) {
	a.mu.Lock()
	r := a.run
	a.mu.Unlock()

	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	return a.Snapshot(), nil
}

// Close cancels the current analysis and waits for its goroutines.
func (a *Analyzer) Close(ctx context.Context) error {
	a.Cancel()
	_, err := a.Wait(ctx)
	return err
}

// execute runs both pipelines to completion. A failing pipeline does not
// stop the other one.
func (a *Analyzer) execute(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	var g errgroup.Group
	g.Go(func() error { return a.runTranscript(ctx, r) })
	g.Go(func() error { return a.runSummary(ctx, r) })
	_ = g.Wait()

	a.mu.Lock()
	current := a.generation == r.generation
	state := a.snap.State
	a.mu.Unlock()

	if !current {
		return
	}
	a.metrics.RecordAnalysisEnd(state.String(), time.Since(r.started).Seconds())
	r.logger.Info().
		Str("state", state.String()).
		Dur("duration", time.Since(r.started)).
		Msg("Analysis finished")
}

// update applies mutate to a copy of the current snapshot and publishes it,
// unless r is no longer the current analysis or pipeline p has already
// finished. Returns false if the update was discarded.
func (a *Analyzer) update(r *run, p Pipeline, event Event, mutate func(s *Snapshot)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generation != r.generation || !r.lifecycle(p).CanPublish() {
		a.metrics.RecordStaleDiscarded()
		return false
	}
	next := a.snap
	mutate(&next)
	next.Event = event
	a.commitLocked(next)
	return true
}

// finishPipeline moves p to its terminal state and publishes the status
// change. err nil means success.
func (a *Analyzer) finishPipeline(r *run, p Pipeline, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lc := r.lifecycle(p)
	if a.generation != r.generation {
		lc.Fail(context.Canceled)
		return
	}

	status := PipelineStatus{State: StateDone}
	if err != nil {
		if !lc.Fail(err) {
			return
		}
		status = PipelineStatus{State: StateFailed, Error: err.Error()}
	} else if cerr := lc.Complete(); cerr != nil {
		return
	}
	a.metrics.RecordPipelineEnd(string(p), status.State.String(), lc.Duration().Seconds())

	next := a.snap
	*next.status(p) = status
	next.derive()
	next.Event = EventStatus
	a.commitLocked(next)
}

// commitLocked replaces the current snapshot and notifies sinks.
func (a *Analyzer) commitLocked(next Snapshot) {
	next.Seq = a.snap.Seq + 1
	next.UpdatedAt = time.Now()
	a.snap = next
	a.publishLocked()
}

func (a *Analyzer) publishLocked() {
	a.metrics.RecordSnapshot()
	a.metrics.RecordBlocks(len(a.snap.Blocks))
	for _, e := range a.sinks {
		e.sink.Publish(a.snap)
	}
}
