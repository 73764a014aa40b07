package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "ai-video-digest-service/internal/api/grpc"
	"ai-video-digest-service/internal/app"
	"ai-video-digest-service/internal/config"
	"ai-video-digest-service/internal/events"
	httpapi "ai-video-digest-service/internal/http"
	"ai-video-digest-service/internal/live"
	"ai-video-digest-service/internal/observability"
	"ai-video-digest-service/internal/observability/metrics"
	"ai-video-digest-service/internal/service/analysis"
	"ai-video-digest-service/internal/service/source"
	"ai-video-digest-service/internal/service/source/cache"
	"ai-video-digest-service/internal/service/source/gemini"
	"ai-video-digest-service/internal/service/source/httpsource"
	"ai-video-digest-service/internal/service/source/mock"
	"ai-video-digest-service/internal/youtube"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transcripts, summaries, err := newSources(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Source.Provider).Msg("Failed to create sources")
	}

	// Replay cache is optional; an unreachable Redis only disables it
	if cfg.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, replay cache disabled")
		} else {
			defer store.Close()
			transcripts = cache.Wrap(transcripts, source.KindTranscript, store, cfg.Cache.TTL)
			summaries = cache.Wrap(summaries, source.KindSummary, store, cfg.Cache.TTL)
			log.Info().Dur("ttl", cfg.Cache.TTL).Msg("Replay cache enabled")
		}
	}

	analyzer := analysis.New(analysis.Config{
		Transcripts: transcripts,
		Summaries:   summaries,
		Validate:    youtube.Validate,
		Limits: analysis.Limits{
			MaxBytes:    cfg.Limits.MaxBytes,
			MaxDuration: cfg.Limits.MaxDuration,
		},
	})
	application.Analyzer = analyzer

	// Create Kafka publisher with separate topics for in-progress and final snapshots
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()
	kafkaSink := events.NewSink(publisher, cfg.Kafka.QueueSize)
	analyzer.Subscribe(kafkaSink)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := live.NewHub(metrics.DefaultMetrics)
	go hub.Run(hubCtx)
	analyzer.Subscribe(hub)

	// Observability server
	obs := observability.NewServer(":"+cfg.Service.MetricsPort, application.Ready)
	obs.Start()

	// HTTP server
	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(application, hub, httpapi.Upstream{
			Transcripts: transcripts,
			Summaries:   summaries,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// gRPC server
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Register application services
	grpcapi.Register(server, analyzer)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-ctx.Done()

	application.Shutdown()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	stopHub()
	server.GracefulStop()
	if err := analyzer.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Analysis did not stop in time")
	}
	if err := kafkaSink.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Kafka queue not drained")
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Observability server shutdown")
	}
}

// newSources builds the transcript and summary sources of the configured
// provider.
func newSources(ctx context.Context, cfg *config.Config) (source.TranscriptSource, source.SummarySource, error) {
	switch cfg.Source.Provider {
	case config.ProviderGemini:
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Source.GeminiAPIKey,
			PromptsPath: cfg.Source.PromptsPath,
		})
		if err != nil {
			return nil, nil, err
		}
		return client.Transcript(), client.Summary(), nil

	case config.ProviderHTTP:
		client := httpsource.New(httpsource.Config{
			BaseURL:           cfg.Source.UpstreamURL,
			RequestsPerSecond: cfg.Source.RequestsPerSecond,
			Burst:             cfg.Source.Burst,
			Timeout:           cfg.Source.Timeout,
		})
		return client.Transcript(), client.Summary(), nil

	case config.ProviderMock:
		opts := []mock.Option{
			mock.WithChunkSize(cfg.Source.MockChunkSize),
			mock.WithDelay(cfg.Source.MockDelay),
		}
		return mock.New(source.KindTranscript, opts...), mock.New(source.KindSummary, opts...), nil

	default:
		log.Warn().Str("provider", cfg.Source.Provider).Msg("Unknown source provider, using mock")
		return mock.New(source.KindTranscript), mock.New(source.KindSummary), nil
	}
}
