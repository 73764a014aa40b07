// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_video_digest"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal    prometheus.Counter
	AnalysesActive   prometheus.Gauge
	AnalysesOutcome  *prometheus.CounterVec
	AnalysesCanceled prometheus.Counter
	AnalysisDuration prometheus.Histogram

	// Pipeline metrics
	PipelineOutcome  *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	ChunksReceived   *prometheus.CounterVec
	BytesReceived    *prometheus.CounterVec

	// Transcript parse metrics
	ParseOutcome  *prometheus.CounterVec
	BlocksCurrent prometheus.Gauge
	SchemaIssues  prometheus.Counter

	// Snapshot metrics
	SnapshotsPublished prometheus.Counter
	StaleDiscarded     prometheus.Counter

	// Sink metrics
	WebSocketClients prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Source metrics
	SourceErrors  *prometheus.CounterVec
	SourceLatency *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec

	// gRPC metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamDuration prometheus.Histogram
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewUnregistered creates a metrics set on a private registry. Used by tests
// that need a fresh set without colliding with DefaultMetrics.
func NewUnregistered() *Metrics {
	return newMetrics(promauto.With(prometheus.NewRegistry()))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		// Analysis metrics
		AnalysesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of analyses started",
		}),
		AnalysesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analyses_active",
			Help:      "Number of analyses with a pipeline still in flight",
		}),
		AnalysesOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_finished_total",
			Help:      "Total number of finished analyses by final state",
		}, []string{"state"}),
		AnalysesCanceled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_canceled_total",
			Help:      "Total number of analyses abandoned by a restart or cancel",
		}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time from start until both pipelines are terminal",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Pipeline metrics
		PipelineOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_finished_total",
			Help:      "Total number of finished pipelines by kind and state",
		}, []string{"pipeline", "state"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"pipeline"}),
		ChunksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Total number of upstream chunks received",
		}, []string{"pipeline"}),
		BytesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total upstream bytes received",
		}, []string{"pipeline"}),

		// Transcript parse metrics
		ParseOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_parses_total",
			Help:      "Best-effort transcript parses by outcome",
		}, []string{"outcome"}),
		BlocksCurrent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_blocks",
			Help:      "Number of blocks in the current snapshot",
		}),
		SchemaIssues: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_schema_issues_total",
			Help:      "Total number of schema issues found in completed transcripts",
		}),

		// Snapshot metrics
		SnapshotsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots published to sinks",
		}),
		StaleDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_updates_discarded_total",
			Help:      "Total number of updates dropped because a newer analysis started",
		}),

		// Sink metrics
		WebSocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket clients",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Source metrics
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Total number of upstream source errors",
		}, []string{"provider", "error_type"}),
		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_open_latency_seconds",
			Help:      "Time until an upstream stream is open",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Replay cache lookups by result",
		}, []string{"result"}),

		// gRPC metrics
		StreamsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_streams_total",
			Help:      "Total number of gRPC streams started",
		}),
		StreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently active gRPC streams",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_stream_duration_seconds",
			Help:      "Duration of gRPC streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// RecordAnalysisStart records a new analysis starting.
func (m *Metrics) RecordAnalysisStart() {
	m.AnalysesTotal.Inc()
	m.AnalysesActive.Inc()
}

// RecordAnalysisEnd records an analysis reaching a terminal state.
func (m *Metrics) RecordAnalysisEnd(state string, durationSeconds float64) {
	m.AnalysesActive.Dec()
	m.AnalysesOutcome.WithLabelValues(state).Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisCanceled records an analysis abandoned while in flight.
func (m *Metrics) RecordAnalysisCanceled() {
	m.AnalysesActive.Dec()
	m.AnalysesCanceled.Inc()
}

// RecordPipelineEnd records a pipeline reaching a terminal state.
func (m *Metrics) RecordPipelineEnd(pipeline, state string, durationSeconds float64) {
	m.PipelineOutcome.WithLabelValues(pipeline, state).Inc()
	m.PipelineDuration.WithLabelValues(pipeline).Observe(durationSeconds)
}

// RecordChunk records one upstream chunk.
func (m *Metrics) RecordChunk(pipeline string, bytes int) {
	m.ChunksReceived.WithLabelValues(pipeline).Inc()
	m.BytesReceived.WithLabelValues(pipeline).Add(float64(bytes))
}

// RecordParse records a best-effort parse outcome ("value" or "none").
func (m *Metrics) RecordParse(outcome string) {
	m.ParseOutcome.WithLabelValues(outcome).Inc()
}

// RecordBlocks records the block count of the current snapshot.
func (m *Metrics) RecordBlocks(n int) {
	m.BlocksCurrent.Set(float64(n))
}

// RecordSchemaIssues records issues reported for a completed transcript.
func (m *Metrics) RecordSchemaIssues(n int) {
	m.SchemaIssues.Add(float64(n))
}

// RecordSnapshot records a snapshot published to sinks.
func (m *Metrics) RecordSnapshot() {
	m.SnapshotsPublished.Inc()
}

// RecordStaleDiscarded records an update dropped for an abandoned analysis.
func (m *Metrics) RecordStaleDiscarded() {
	m.StaleDiscarded.Inc()
}

// RecordWebSocketClients records the number of connected WebSocket clients.
func (m *Metrics) RecordWebSocketClients(n int) {
	m.WebSocketClients.Set(float64(n))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSourceOpen records the latency of opening an upstream stream.
func (m *Metrics) RecordSourceOpen(provider string, latencySeconds float64) {
	m.SourceLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordSourceError records an upstream source error.
func (m *Metrics) RecordSourceError(provider, errorType string) {
	m.SourceErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordCacheLookup records a replay cache lookup ("hit", "miss" or "error").
func (m *Metrics) RecordCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordStreamStart records a new gRPC stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a gRPC stream ending.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}
