package mock

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrStreamEnded is returned by Send after Finish or Fail.
var ErrStreamEnded = errors.New("mock stream already ended")

// Manual is a source whose streams are driven chunk by chunk by the caller.
// Every Open is announced on Opened.
type Manual struct {
	mu      sync.Mutex
	openErr error
	opened  chan *Stream
}

// NewManual creates a manual source.
func NewManual() *Manual {
	return &Manual{opened: make(chan *Stream, 16)}
}

// FailOpen makes subsequent Opens fail with err. A nil err clears it.
func (m *Manual) FailOpen(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// Opened delivers each stream as it is opened.
func (m *Manual) Opened() <-chan *Stream {
	return m.opened
}

// Open creates a stream and announces it on Opened.
func (m *Manual) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	m.mu.Lock()
	err := m.openErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	s := &Stream{Target: target, w: pw}
	s.stop = context.AfterFunc(ctx, func() {
		pw.CloseWithError(ctx.Err())
	})
	m.opened <- s
	return pr, nil
}

// Stream is one opened manual stream.
type Stream struct {
	Target string

	mu    sync.Mutex
	w     *io.PipeWriter
	stop  func() bool
	ended bool
}

// Send delivers one chunk and blocks until the reader has taken it.
func (s *Stream) Send(chunk string) error {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return ErrStreamEnded
	}
	_, err := s.w.Write([]byte(chunk))
	return err
}

// Finish ends the stream successfully.
func (s *Stream) Finish() {
	s.end(nil)
}

// Fail ends the stream with err.
func (s *Stream) Fail(err error) {
	s.end(err)
}

func (s *Stream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.stop()
	s.w.CloseWithError(err)
}
