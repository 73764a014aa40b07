package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-video-digest-service/internal/observability/metrics"
)

func TestServer_Endpoints(t *testing.T) {
	ready := false
	mux := newMux(func() bool { return ready })

	tests := []struct {
		path string
		code int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.code)
		}
	}

	ready = true
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d after ready, want 200", rec.Code)
	}
}

func TestServer_NilReadyIsReady(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
}

func TestStreamServerInterceptor_PassesError(t *testing.T) {
	icpt := StreamServerInterceptor(metrics.NewUnregistered())
	want := status.Error(codes.InvalidArgument, "bad target")

	err := icpt(nil, nil, &grpc.StreamServerInfo{FullMethod: "/svc/Method"},
		func(any, grpc.ServerStream) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestUnaryServerInterceptor_PassesResponse(t *testing.T) {
	icpt := UnaryServerInterceptor()

	resp, err := icpt(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/svc/Method"},
		func(ctx context.Context, req any) (any, error) { return "resp", nil })
	if err != nil || resp != "resp" {
		t.Errorf("got (%v, %v), want (resp, nil)", resp, err)
	}
}
