// Package source defines the upstream streams an analysis consumes.
//
// A transcript source yields bytes whose accumulated content is eventually a
// JSON array of blocks. A summary source yields plain UTF-8 text. Both are
// opened per target and read until EOF; any other read error is a transport
// failure.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Kind identifies which of the two upstream streams a source serves.
type Kind string

const (
	KindTranscript Kind = "transcript"
	KindSummary    Kind = "summary"
)

// Source opens an upstream byte stream for a target.
type Source interface {
	// Open starts the upstream request. The returned reader ends with io.EOF
	// on success; closing it aborts the request. The stream is also aborted
	// when ctx is canceled.
	Open(ctx context.Context, target string) (io.ReadCloser, error)
}

// TranscriptSource yields a streamed JSON array of transcript blocks.
type TranscriptSource interface {
	Source
}

// SummarySource yields a streamed plain-text summary.
type SummarySource interface {
	Source
}

// Func adapts a function to the Source interface.
type Func func(ctx context.Context, target string) (io.ReadCloser, error)

// Open calls f.
func (f Func) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	return f(ctx, target)
}

// ErrStatus is matched by every *StatusError.
var ErrStatus = errors.New("upstream returned a non-success status")

// StatusError reports an upstream response with a non-success status.
type StatusError struct {
	Kind   Kind
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s upstream: status %d %s", e.Kind, e.Code, e.Status)
	}
	return fmt.Sprintf("%s upstream: status %d %s: %s", e.Kind, e.Code, e.Status, e.Body)
}

// Unwrap lets errors.Is(err, ErrStatus) match.
func (e *StatusError) Unwrap() error {
	return ErrStatus
}

// ErrorType classifies err for metrics labels.
func ErrorType(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &se):
		return fmt.Sprintf("status_%d", se.Code)
	default:
		return "transport"
	}
}
