// Package httpsource streams transcripts and summaries from an upstream
// HTTP service that speaks the /api/transcribe and /api/summarize protocol:
// POST {"url": target}, chunked text/plain response body.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/service/source"
)

const (
	TranscribePath = "/api/transcribe"
	SummarizePath  = "/api/summarize"

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Config configures the upstream client.
type Config struct {
	BaseURL string
	// RequestsPerSecond paces requests to the upstream. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	// Timeout bounds the whole request including the streamed body.
	Timeout time.Duration
}

// Client talks to the upstream service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// New creates an upstream client.
func New(cfg Config) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		metrics: metrics.DefaultMetrics,
	}
}

// Transcript returns the transcript source.
func (c *Client) Transcript() source.TranscriptSource {
	return &endpoint{client: c, kind: source.KindTranscript, path: TranscribePath}
}

// Summary returns the summary source.
func (c *Client) Summary() source.SummarySource {
	return &endpoint{client: c, kind: source.KindSummary, path: SummarizePath}
}

type endpoint struct {
	client *Client
	kind   source.Kind
	path   string
}

type request struct {
	URL string `json:"url"`
}

// Open posts the target and returns the streamed response body.
func (e *endpoint) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	c := e.client
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s upstream: wait for rate limiter: %w", e.kind, err)
	}

	data, err := json.Marshal(request{URL: target})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+e.path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s upstream: build request: %w", e.kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordSourceError("http", source.ErrorType(err))
		return nil, fmt.Errorf("%s upstream: %w", e.kind, err)
	}
	c.metrics.RecordSourceOpen("http", time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &source.StatusError{
			Kind:   e.kind,
			Code:   resp.StatusCode,
			Status: http.StatusText(resp.StatusCode),
			Body:   strings.TrimSpace(string(body)),
		}
		c.metrics.RecordSourceError("http", source.ErrorType(serr))
		return nil, serr
	}
	return resp.Body, nil
}
