// Package http exposes the analysis over REST and WebSocket, plus the
// upstream streaming endpoints.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-video-digest-service/internal/app"
	"ai-video-digest-service/internal/live"
	"ai-video-digest-service/internal/service/analysis"
	"ai-video-digest-service/internal/service/source"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Upstream holds the sources served by the streaming endpoints.
type Upstream struct {
	Transcripts source.TranscriptSource
	Summaries   source.SummarySource
}

// analysisRequest is the body of POST /v1/analyses and the upstream
// endpoints.
type analysisRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the service. ws serves the
// WebSocket endpoint.
func NewRouter(application *app.Application, ws http.Handler, upstream Upstream) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Viewer page
	r.Handle("/", live.Assets())

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyses", startAnalysis(application.Analyzer))
		r.Get("/analyses/current", currentAnalysis(application.Analyzer))
		r.Delete("/analyses/current", cancelAnalysis(application.Analyzer))
		if ws != nil {
			r.Handle("/ws", ws)
		}
	})

	// Upstream streaming endpoints
	r.Route("/api", func(r chi.Router) {
		if upstream.Transcripts != nil {
			r.Post("/transcribe", streamSource(upstream.Transcripts))
		}
		if upstream.Summaries != nil {
			r.Post("/summarize", streamSource(upstream.Summaries))
		}
	})

	return r
}

func startAnalysis(a *analysis.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		snap, err := a.Start(r.Context(), req.URL)
		if errors.Is(err, analysis.ErrInvalidTarget) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, snap)
	}
}

func currentAnalysis(a *analysis.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.Snapshot())
	}
}

func cancelAnalysis(a *analysis.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !a.Cancel() {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "no analysis in flight"})
			return
		}
		writeJSON(w, http.StatusOK, a.Snapshot())
	}
}

// streamSource proxies src as chunked UTF-8 text, flushing after every read.
func streamSource(src source.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		if req.URL == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
			return
		}

		rc, err := src.Open(r.Context(), req.URL)
		if err != nil {
			log.Error().Err(err).Str("url", req.URL).Str("path", r.URL.Path).Msg("Failed to open upstream stream")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		buf := make([]byte, 32*1024)
		for {
			n, rerr := rc.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if rerr == io.EOF {
				return
			}
			if rerr != nil {
				// Headers are already sent; the client sees a truncated body.
				log.Warn().Err(rerr).Str("path", r.URL.Path).Msg("Upstream stream failed mid-response")
				return
			}
		}
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (analysisRequest, bool) {
	var req analysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

// requestLogger logs every request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
