// Package mock provides upstream sources for development and tests without
// cloud credentials. Source plays back a scripted document in small byte
// chunks, so multi-byte characters regularly straddle chunk boundaries the
// way they do on a real network stream. Manual lets a test drive each chunk.
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"ai-video-digest-service/internal/service/source"
)

// DefaultTranscripts are the scripted transcript documents, cycled per Open.
var DefaultTranscripts = []string{
	`[{"heading":"المقدمة","timestamp":"00:00","body":[` +
		`{"name":"سارة","role":"المضيفة","text":"أهلا بكم في حلقة جديدة"},` +
		`{"name":"خالد","role":"الضيف","text":"شكرا على الاستضافة"}]},` +
		`{"heading":"بداية القصة","timestamp":"02:15","body":[` +
		`{"name":"خالد","role":"الضيف","text":"بدأ كل شيء في مدينة صغيرة"},` +
		`{"role":"الراوي","text":"وهنا تبدأ الرحلة"}]}]`,
	`[{"heading":"Intro","timestamp":"00:00","body":[` +
		`{"name":"Ana","role":"host","text":"Welcome back — café talk №7"},` +
		`{"name":"Bo","role":"guest","text":"Glad to be here 🎬"}]},` +
		`{"heading":"Main topic","timestamp":"01:05:30","body":[` +
		`{"name":"Ana","role":"host","text":"Let's get into it"}]}]`,
}

// DefaultSummaries are the scripted summary texts, cycled per Open.
var DefaultSummaries = []string{
	"تتناول الحلقة قصة خالد منذ بدايتها في مدينة صغيرة، وتستعرض أبرز المحطات في رحلته.",
	"Ana and Bo talk about café culture — a short, friendly episode. 🎬",
}

// DefaultChunkSize is the playback chunk size in bytes.
const DefaultChunkSize = 7

var (
	scriptCounter int
	counterMu     sync.Mutex
)

func nextScript(kind source.Kind) string {
	counterMu.Lock()
	idx := scriptCounter
	scriptCounter++
	counterMu.Unlock()

	if kind == source.KindSummary {
		return DefaultSummaries[idx%len(DefaultSummaries)]
	}
	return DefaultTranscripts[idx%len(DefaultTranscripts)]
}

// Option configures a Source.
type Option func(*Source)

// WithChunks replaces the scripted document with explicit chunks.
func WithChunks(chunks ...string) Option {
	return func(s *Source) {
		s.chunks = make([][]byte, len(chunks))
		for i, c := range chunks {
			s.chunks[i] = []byte(c)
		}
	}
}

// WithChunkSize sets the split size of the default scripts.
func WithChunkSize(n int) Option {
	return func(s *Source) { s.chunkSize = n }
}

// WithDelay sets the pause before each chunk.
func WithDelay(d time.Duration) Option {
	return func(s *Source) { s.delay = d }
}

// WithOpenError makes Open fail with err.
func WithOpenError(err error) Option {
	return func(s *Source) { s.openErr = err }
}

// WithFailure ends the stream with err after n chunks were delivered.
func WithFailure(n int, err error) Option {
	return func(s *Source) {
		s.failAfter = n
		s.failErr = err
	}
}

// Source implements source.Source with scripted playback.
type Source struct {
	kind      source.Kind
	chunks    [][]byte
	chunkSize int
	delay     time.Duration
	openErr   error
	failAfter int
	failErr   error
}

// New creates a scripted source of the given kind. Without WithChunks each
// Open plays the next default script split into DefaultChunkSize chunks.
func New(kind source.Kind, opts ...Option) *Source {
	s := &Source{kind: kind, failAfter: -1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts playback in the background.
func (s *Source) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.openErr != nil {
		return nil, s.openErr
	}

	chunks := s.chunks
	if chunks == nil {
		chunks = Split(nextScript(s.kind), s.chunkSize)
	}

	pr, pw := io.Pipe()
	go s.play(ctx, pw, chunks)
	return pr, nil
}

func (s *Source) play(ctx context.Context, pw *io.PipeWriter, chunks [][]byte) {
	stop := context.AfterFunc(ctx, func() {
		pw.CloseWithError(ctx.Err())
	})
	defer stop()

	for i, chunk := range chunks {
		if i == s.failAfter {
			pw.CloseWithError(s.failErr)
			return
		}
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.delay):
			}
		}
		if _, err := pw.Write(chunk); err != nil {
			return
		}
	}
	if s.failAfter >= len(chunks) {
		pw.CloseWithError(s.failErr)
		return
	}
	pw.Close()
}

// Split cuts text into chunks of size bytes, ignoring rune boundaries.
func Split(text string, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	data := []byte(text)
	chunks := make([][]byte, 0, len(data)/size+1)
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
