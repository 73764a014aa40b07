package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-video-digest-service/internal/service/source"
	"ai-video-digest-service/internal/service/source/mock"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type countingSource struct {
	next  source.Source
	opens int
}

func (c *countingSource) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	c.opens++
	return c.next.Open(ctx, target)
}

func readAll(t *testing.T, s source.Source, target string) (string, error) {
	t.Helper()
	rc, err := s.Open(context.Background(), target)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	return string(data), err
}

func TestSource_StoresAfterEOFAndReplays(t *testing.T) {
	upstream := &countingSource{next: mock.New(source.KindSummary, mock.WithChunks("Hel", "lo wor", "ld"))}
	store := newMemStore()
	s := Wrap(upstream, source.KindSummary, store, time.Hour)

	got, err := readAll(t, s, "video-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)
	assert.Equal(t, 1, store.len())

	got, err = readAll(t, s, "video-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)
	assert.Equal(t, 1, upstream.opens, "second read should be served from the cache")
}

func TestSource_FailedStreamIsNotStored(t *testing.T) {
	upstream := mock.New(source.KindSummary, mock.WithChunks("a", "b"), mock.WithFailure(1, errors.New("reset")))
	store := newMemStore()
	s := Wrap(upstream, source.KindSummary, store, time.Hour)

	_, err := readAll(t, s, "video-1")
	require.Error(t, err)
	assert.Equal(t, 0, store.len())
}

func TestSource_TranscriptStoredOnlyWhenComplete(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		stored bool
	}{
		{"complete document", []string{`[{"heading":"Intro`, `"}]`}, true},
		{"upstream stopped early", []string{`[{"heading":"Intro`, `"}`}, false},
		{"empty body", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &countingSource{next: mock.New(source.KindTranscript, mock.WithChunks(tt.chunks...))}
			store := newMemStore()
			s := Wrap(upstream, source.KindTranscript, store, time.Hour)

			_, err := readAll(t, s, "video-1")
			require.NoError(t, err)
			if !tt.stored {
				assert.Equal(t, 0, store.len())
				return
			}
			assert.Equal(t, 1, store.len())
			got, err := readAll(t, s, "video-1")
			require.NoError(t, err)
			assert.Equal(t, `[{"heading":"Intro"}]`, got)
			assert.Equal(t, 1, upstream.opens)
		})
	}
}

func TestSource_AbandonedStreamIsNotStored(t *testing.T) {
	upstream := mock.New(source.KindSummary, mock.WithChunks("abc", "def"))
	store := newMemStore()
	s := Wrap(upstream, source.KindSummary, store, time.Hour)

	rc, err := s.Open(context.Background(), "video-1")
	require.NoError(t, err)
	buf := make([]byte, 8)
	_, err = rc.Read(buf)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Equal(t, 0, store.len())
}

func TestSource_StoreErrorFallsThrough(t *testing.T) {
	upstream := &countingSource{next: mock.New(source.KindSummary, mock.WithChunks("x"))}
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	s := Wrap(upstream, source.KindSummary, store, time.Hour)

	got, err := readAll(t, s, "video-1")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, 1, upstream.opens)
}

func TestSource_OpenErrorPropagates(t *testing.T) {
	want := &source.StatusError{Kind: source.KindTranscript, Code: 500}
	s := Wrap(mock.New(source.KindTranscript, mock.WithOpenError(want)), source.KindTranscript, newMemStore(), time.Hour)

	_, err := s.Open(context.Background(), "video-1")
	assert.ErrorIs(t, err, source.ErrStatus)
}

func TestKey_SeparatesKinds(t *testing.T) {
	assert.NotEqual(t, Key(source.KindSummary, "v"), Key(source.KindTranscript, "v"))
	assert.Equal(t, Key(source.KindSummary, "v"), Key(source.KindSummary, "v"))
	assert.Contains(t, Key(source.KindSummary, "v"), "digest:summary:")
}
