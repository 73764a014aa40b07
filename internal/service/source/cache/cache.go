// Package cache replays completed upstream streams from Redis.
//
// A stream is stored only after it was read to a clean EOF, so a failed or
// abandoned upstream request never poisons the cache. A transcript is also
// required to be a complete JSON document. A hit is replayed through the
// same chunked reader interface as a live stream.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/service/source"
)

// ErrMiss is returned by Store.Get when the key is not cached.
var ErrMiss = errors.New("cache miss")

// replayChunk is the chunk size a hit is replayed with.
const replayChunk = 512

// Store is the byte store behind the cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and pings it. The caller decides what
// an unreachable server means.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the cached value or ErrMiss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

// Set stores value with a TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Key builds the cache key of a stream kind and target.
func Key(kind source.Kind, target string) string {
	hash := sha256.Sum256([]byte(target))
	return fmt.Sprintf("digest:%s:%x", kind, hash[:12])
}

// Source wraps an upstream source with the replay cache.
type Source struct {
	next    source.Source
	kind    source.Kind
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Wrap returns next decorated with the cache.
func Wrap(next source.Source, kind source.Kind, store Store, ttl time.Duration) *Source {
	return &Source{
		next:    next,
		kind:    kind,
		store:   store,
		ttl:     ttl,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithSource("cache", string(kind)),
	}
}

// Open replays a cached stream or opens the upstream one. Store errors
// fall through to the upstream.
func (s *Source) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	key := Key(s.kind, target)

	data, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		s.metrics.RecordCacheLookup("hit")
		s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Replaying cached stream")
		return &replay{r: bytes.NewReader(data)}, nil
	case errors.Is(err, ErrMiss):
		s.metrics.RecordCacheLookup("miss")
	default:
		s.metrics.RecordCacheLookup("error")
		s.logger.Warn().Err(err).Msg("Cache lookup failed, using upstream")
	}

	rc, err := s.next.Open(ctx, target)
	if err != nil {
		return nil, err
	}
	return &recorder{rc: rc, src: s, key: key}, nil
}

// replay hands out a cached body in bounded chunks.
type replay struct {
	r *bytes.Reader
}

func (r *replay) Read(p []byte) (int, error) {
	if len(p) > replayChunk {
		p = p[:replayChunk]
	}
	return r.r.Read(p)
}

func (r *replay) Close() error {
	return nil
}

// recorder copies everything read from the upstream and stores it once the
// upstream ends with io.EOF.
type recorder struct {
	rc     io.ReadCloser
	src    *Source
	key    string
	buf    bytes.Buffer
	stored bool
	failed bool
}

func (r *recorder) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.buf.Write(p[:n])
	}
	switch {
	case err == io.EOF && !r.stored && !r.failed:
		r.stored = true
		r.store()
	case err != nil && err != io.EOF:
		r.failed = true
	}
	return n, err
}

func (r *recorder) store() {
	if r.src.kind == source.KindTranscript && !json.Valid(r.buf.Bytes()) {
		r.src.logger.Warn().Str("key", r.key).Int("bytes", r.buf.Len()).
			Msg("Transcript ended with an incomplete document, not caching")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.src.store.Set(ctx, r.key, r.buf.Bytes(), r.src.ttl); err != nil {
		r.src.logger.Warn().Err(err).Msg("Failed to store stream in cache")
		return
	}
	r.src.logger.Debug().Str("key", r.key).Int("bytes", r.buf.Len()).Msg("Stored stream in cache")
}

func (r *recorder) Close() error {
	return r.rc.Close()
}
