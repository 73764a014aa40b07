// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Source providers.
const (
	ProviderMock   = "mock"
	ProviderGemini = "gemini"
	ProviderHTTP   = "http"
)

// Config is the complete service configuration.
type Config struct {
	Service       ServiceConfig
	Source        SourceConfig
	Limits        LimitsConfig
	Cache         CacheConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// SourceConfig selects and configures the upstream streams.
type SourceConfig struct {
	Provider string // mock, gemini, http

	GeminiAPIKey string
	PromptsPath  string

	UpstreamURL       string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration

	MockChunkSize int
	MockDelay     time.Duration
}

// LimitsConfig bounds a single pipeline.
type LimitsConfig struct {
	MaxBytes    int64
	MaxDuration time.Duration
}

// CacheConfig configures the Redis replay cache. An empty RedisURL disables it.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// KafkaConfig configures the snapshot publisher.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	QueueSize    int
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment. Values that fail to
// parse fall back to their defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-video-digest")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Source: SourceConfig{
			Provider:          strings.ToLower(envOrDefault("SOURCE_PROVIDER", ProviderMock)),
			GeminiAPIKey:      envOrDefault("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
			PromptsPath:       os.Getenv("GEMINI_PROMPTS_PATH"),
			UpstreamURL:       envOrDefault("UPSTREAM_BASE_URL", "http://localhost:3000"),
			RequestsPerSecond: envOrDefaultFloat("UPSTREAM_REQUESTS_PER_SECOND", 0),
			Burst:             envOrDefaultInt("UPSTREAM_BURST", 1),
			Timeout:           envOrDefaultDuration("UPSTREAM_TIMEOUT", 10*time.Minute),
			MockChunkSize:     envOrDefaultInt("MOCK_CHUNK_SIZE", 7),
			MockDelay:         envOrDefaultDuration("MOCK_CHUNK_DELAY", 50*time.Millisecond),
		},
		Limits: LimitsConfig{
			MaxBytes:    envOrDefaultInt64("PIPELINE_MAX_BYTES", 8*1024*1024),
			MaxDuration: envOrDefaultDuration("PIPELINE_MAX_DURATION", 15*time.Minute),
		},
		Cache: CacheConfig{
			RedisURL: os.Getenv("REDIS_URL"),
			TTL:      envOrDefaultDuration("CACHE_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "video.digest.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "video.digest.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
			QueueSize:    envOrDefaultInt("KAFKA_QUEUE_SIZE", 64),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
