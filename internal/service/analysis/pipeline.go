package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"ai-video-digest-service/internal/models"
	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/partialjson"
	"ai-video-digest-service/internal/service/source"
	"ai-video-digest-service/internal/stream"
)

// readBufferSize is larger than any chunk the upstreams send, so one read
// normally returns one upstream chunk.
const readBufferSize = 32 * 1024

// runTranscript streams the transcript: every chunk re-parses the whole
// decoded text best-effort and publishes the blocks and their index.
func (a *Analyzer) runTranscript(ctx context.Context, r *run) error {
	logger := logging.WithPipeline(r.id, string(PipelineTranscript))
	dec := stream.NewDecoder()
	var blocks []models.Block

	parse := func() {
		text := dec.Text()
		parsed, ok := ParseBlocks(text)
		if !ok {
			a.metrics.RecordParse("none")
			logger.Debug().Int("chars", len(text)).Msg("No transcript value yet")
			return
		}
		a.metrics.RecordParse("value")
		blocks = parsed
		index := models.Project(parsed)
		a.update(r, PipelineTranscript, EventTranscript, func(s *Snapshot) {
			s.Blocks = parsed
			s.Index = index
		})
	}

	err := a.consume(ctx, r, PipelineTranscript, a.transcripts, dec, parse, logger)
	if err == nil {
		// A trailing incomplete character is only flushed on close.
		before := len(dec.Text())
		_ = dec.Close()
		if len(dec.Text()) != before {
			parse()
		}
		a.checkTranscript(dec.Text(), blocks, logger)
	}
	a.finishPipeline(r, PipelineTranscript, err)
	return err
}

// runSummary streams the summary: every chunk publishes the cumulative text.
func (a *Analyzer) runSummary(ctx context.Context, r *run) error {
	logger := logging.WithPipeline(r.id, string(PipelineSummary))
	dec := stream.NewDecoder()

	publish := func() {
		text := dec.Text()
		a.update(r, PipelineSummary, EventSummary, func(s *Snapshot) {
			s.Summary = text
		})
	}

	err := a.consume(ctx, r, PipelineSummary, a.summaries, dec, publish, logger)
	if err == nil {
		before := len(dec.Text())
		_ = dec.Close()
		if len(dec.Text()) != before {
			publish()
		}
	}
	a.finishPipeline(r, PipelineSummary, err)
	return err
}

// consume opens src and feeds every chunk through dec, calling onText
// whenever the decoded text grew. It returns nil when the stream ended with
// io.EOF.
func (a *Analyzer) consume(
	ctx context.Context,
	r *run,
	p Pipeline,
	src source.Source,
	dec *stream.Decoder,
	onText func(),
	logger zerolog.Logger,
) error {
	if a.limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, a.limits.MaxDuration,
			fmt.Errorf("%w: ran longer than %s", ErrLimitExceeded, a.limits.MaxDuration))
		defer cancel()
	}

	rc, err := src.Open(ctx, r.target)
	if err != nil {
		err = pipelineErr(ctx, err)
		logger.Warn().Err(err).Str("errorType", source.ErrorType(err)).Msg("Failed to open upstream stream")
		return err
	}
	defer rc.Close()
	logger.Debug().Msg("Upstream stream opened")

	buf := make([]byte, readBufferSize)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			a.metrics.RecordChunk(string(p), n)
			before := len(dec.Text())
			if werr := dec.Write(buf[:n]); werr != nil {
				return werr
			}
			if a.limits.MaxBytes > 0 && dec.Bytes() > a.limits.MaxBytes {
				err := fmt.Errorf("%w: more than %d bytes", ErrLimitExceeded, a.limits.MaxBytes)
				logger.Warn().Err(err).Msg("Dropping pipeline")
				return err
			}
			if len(dec.Text()) != before {
				onText()
			}
		}
		if rerr == io.EOF {
			logger.Debug().
				Int64("bytes", dec.Bytes()).
				Int("chunks", dec.Chunks()).
				Msg("Upstream stream ended")
			return nil
		}
		if rerr != nil {
			err := pipelineErr(ctx, rerr)
			if !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("Upstream stream failed")
			}
			return err
		}
	}
}

// pipelineErr prefers the context's cause over the error it produced.
func pipelineErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			return cause
		}
	}
	return err
}

// checkTranscript validates the completed transcript and logs what it finds.
func (a *Analyzer) checkTranscript(text string, blocks []models.Block, logger zerolog.Logger) {
	if !json.Valid([]byte(text)) {
		logger.Warn().Int("chars", len(text)).Msg("Transcript stream ended with an incomplete document")
	}
	issues := a.validator.Validate(blocks)
	if len(issues) == 0 {
		return
	}
	a.metrics.RecordSchemaIssues(len(issues))
	arr := zerolog.Arr()
	for i, is := range issues {
		if i == 10 {
			break
		}
		arr.Str(is.String())
	}
	logger.Info().Int("count", len(issues)).Array("issues", arr).Msg("Transcript schema issues")
}

// ParseBlocks parses a possibly incomplete transcript document. It reports
// false when no value can be recovered yet or the value is not an array.
func ParseBlocks(text string) ([]models.Block, bool) {
	repaired, ok := partialjson.Repair(text)
	if !ok {
		return nil, false
	}
	return models.DecodeBlocks([]byte(repaired))
}
