// Command digestviewer consumes digest events from Kafka and shows the
// latest analysis in the browser over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-video-digest-service/internal/events"
	"ai-video-digest-service/internal/live"
	"ai-video-digest-service/internal/observability/metrics"
)

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "video.digest.partial", "In-progress snapshot topic")
	topicFinal := flag.String("topic-final", "video.digest.final", "Final snapshot topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := live.NewHub(metrics.DefaultMetrics)
	go hub.Run(ctx)

	latest := &latestFilter{}
	for _, topic := range []string{*topicPartial, *topicFinal} {
		go consumeKafka(ctx, hub, latest, strings.Split(*brokers, ","), topic, *since)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/", live.Assets())
	r.Handle("/v1/ws", hub)

	srv := &http.Server{Addr: ":" + *port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicPartial, *topicFinal}).
		Msg("Digest viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}

func consumeKafka(ctx context.Context, hub *live.Hub, latest *latestFilter, brokers []string, topic string, since time.Duration) {
	// Partition reader without a consumer group; works through port-forwards
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the start")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event events.DigestEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Invalid event")
			continue
		}
		if !latest.accept(event) {
			continue
		}

		log.Debug().
			Str("eventType", event.EventType).
			Str("analysisId", event.AnalysisID).
			Uint64("seq", event.Seq).
			Int("blocks", len(event.Blocks)).
			Msg("Received event")
		hub.Broadcast(event)
	}
}
