package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-video-digest-service/internal/app"
	"ai-video-digest-service/internal/config"
	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/service/analysis"
	"ai-video-digest-service/internal/service/source"
	"ai-video-digest-service/internal/service/source/mock"
	"ai-video-digest-service/internal/youtube"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func newTestRouter(t *testing.T, transcripts source.TranscriptSource, summaries source.SummarySource) (*app.Application, http.Handler) {
	t.Helper()
	a := analysis.New(analysis.Config{
		Transcripts: transcripts,
		Summaries:   summaries,
		Validate:    youtube.Validate,
		Metrics:     metrics.NewUnregistered(),
	})
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	application := app.New(config.Load())
	application.Analyzer = a
	return application, NewRouter(application, nil, Upstream{Transcripts: transcripts, Summaries: summaries})
}

func defaultSources() (source.TranscriptSource, source.SummarySource) {
	return mock.New(source.KindTranscript, mock.WithChunks(`[{"heading":"Intro`, `"}]`)),
		mock.New(source.KindSummary, mock.WithChunks("Hel", "lo wor", "ld"))
}

func newDefaultRouter(t *testing.T) (*app.Application, http.Handler) {
	t.Helper()
	tr, su := defaultSources()
	return newTestRouter(t, tr, su)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	application, h := newDefaultRouter(t)

	rec := do(t, h, http.MethodGet, "/v1/liveness", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/readiness", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, application.Start())
	rec = do(t, h, http.MethodGet, "/v1/readiness", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestRouter_StartAnalysis(t *testing.T) {
	application, h := newDefaultRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/analyses", `{"url":"`+videoURL+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var snap analysis.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, analysis.StateRunning, snap.State)
	assert.True(t, snap.InFlight)
	assert.Empty(t, snap.Blocks)
	assert.Empty(t, snap.Summary)
	assert.Equal(t, videoURL, snap.Target)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := application.Analyzer.Wait(ctx)
	require.NoError(t, err)

	rec = do(t, h, http.MethodGet, "/v1/analyses/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, analysis.StateDone, snap.State)
	assert.False(t, snap.InFlight)
	assert.Equal(t, "Hello world", snap.Summary)
	require.Len(t, snap.Blocks, 1)
	assert.Equal(t, "Intro", snap.Blocks[0].Heading)
	assert.Equal(t, []string{"Intro"}, snap.Index.Headings)
}

func TestRouter_StartAnalysis_BadRequests(t *testing.T) {
	_, h := newDefaultRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"url":`},
		{"missing url", `{}`},
		{"not youtube", `{"url":"https://example.com/video"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/analyses", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRouter_CancelAnalysis(t *testing.T) {
	tr, su := mock.NewManual(), mock.NewManual()
	_, h := newTestRouter(t, tr, su)

	rec := do(t, h, http.MethodDelete, "/v1/analyses/current", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/analyses", `{"url":"`+videoURL+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/analyses/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap analysis.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, analysis.StateFailed, snap.State)
	assert.False(t, snap.InFlight)
	assert.Equal(t, analysis.ErrCanceled.Error(), snap.SummaryStatus.Error)
}

func TestRouter_UpstreamEndpoints(t *testing.T) {
	_, h := newDefaultRouter(t)

	rec := do(t, h, http.MethodPost, "/api/summarize", `{"url":"`+videoURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Hello world", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/transcribe", `{"url":"`+videoURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `[{"heading":"Intro"}]`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/summarize", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_UpstreamOpenFailure(t *testing.T) {
	failing := mock.New(source.KindSummary, mock.WithOpenError(errors.New("quota exhausted")))
	tr, _ := defaultSources()
	_, h := newTestRouter(t, tr, failing)

	rec := do(t, h, http.MethodPost, "/api/summarize", `{"url":"`+videoURL+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota exhausted")
}

func TestRouter_UpstreamMidStreamFailure(t *testing.T) {
	broken := mock.New(source.KindSummary,
		mock.WithChunks("Hel", "lo", " world"),
		mock.WithFailure(2, io.ErrUnexpectedEOF))
	tr, _ := defaultSources()
	_, h := newTestRouter(t, tr, broken)

	rec := do(t, h, http.MethodPost, "/api/summarize", `{"url":"`+videoURL+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello", rec.Body.String())
}

func TestRouter_ViewerPage(t *testing.T) {
	_, h := newDefaultRouter(t)

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/v1/ws")
}
