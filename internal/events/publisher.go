// Package events publishes analysis snapshots to Kafka.
//
// Every snapshot becomes a DigestEvent keyed by its analysis id, so all
// events of one analysis land on the same partition in Seq order. Running
// snapshots go to the partial topic and the terminal snapshot to the final
// topic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-video-digest-service/internal/observability/metrics"
)

const (
	EventTypePartial = "video.digest.partial"
	EventTypeFinal   = "video.digest.final"
)

// ErrUnknownEventType is returned for an event that is neither partial nor
// final.
var ErrUnknownEventType = errors.New("unknown digest event type")

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes digest events to the partial and final topics. Without
// brokers it only logs.
type Publisher struct {
	writerPartial messageWriter
	writerFinal   messageWriter
	principal     string
	topicPartial  string
	topicFinal    string
	enabled       bool
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// New creates the digest publisher. A nil or disabled config, or one
// without brokers, yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Digest events disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	p := &Publisher{
		principal:    cfg.Principal,
		topicPartial: cfg.TopicPartial,
		topicFinal:   cfg.TopicFinal,
		metrics:      m,
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().
			Str("topicPartial", cfg.TopicPartial).
			Str("topicFinal", cfg.TopicFinal).
			Msg("Digest events disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	// Hash on the analysis id keeps one analysis on one partition.
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}
	p.writerPartial = newWriter(cfg.TopicPartial)
	p.writerFinal = newWriter(cfg.TopicFinal)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Digest event publisher initialized")
	return p
}

// route returns the writer and topic of an event type.
func (p *Publisher) route(eventType string) (messageWriter, string, error) {
	switch eventType {
	case EventTypePartial:
		return p.writerPartial, p.topicPartial, nil
	case EventTypeFinal:
		return p.writerFinal, p.topicFinal, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

// Publish writes e to the topic of its event type, keyed by analysis id.
func (p *Publisher) Publish(ctx context.Context, e DigestEvent) error {
	start := time.Now()

	writer, topic, err := p.route(e.EventType)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("analysisId", e.AnalysisID).Msg("Failed to encode digest event")
		return err
	}

	log.Debug().
		Str("topic", topic).
		Str("analysisId", e.AnalysisID).
		Uint64("seq", e.Seq).
		Str("change", e.Change).
		Str("state", e.State.String()).
		Int("blocks", len(e.Blocks)).
		Int("bytes", len(payload)).
		Msg("Publishing digest event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, e.EventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(e.AnalysisID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(e.EventType)},
			{Key: "principal", Value: []byte(p.principal)},
			{Key: "seq", Value: []byte(strconv.FormatUint(e.Seq, 10))},
		},
	}

	err = writer.WriteMessages(ctx, msg)
	p.metrics.RecordKafkaPublish(topic, e.EventType, err, time.Since(start).Seconds())
	if err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("analysisId", e.AnalysisID).
			Uint64("seq", e.Seq).
			Msg("Failed to write digest event")
		return err
	}
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	for _, w := range []struct {
		writer messageWriter
		topic  string
	}{
		{p.writerPartial, p.topicPartial},
		{p.writerFinal, p.topicFinal},
	} {
		if w.writer == nil {
			continue
		}
		if e := w.writer.Close(); e != nil {
			log.Error().Err(e).Str("topic", w.topic).Msg("Error closing digest writer")
			err = e
		}
	}
	return err
}
