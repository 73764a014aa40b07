// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// WithAnalysis returns a logger with analysis context.
func WithAnalysis(analysisId, target string) zerolog.Logger {
	return log.With().
		Str("analysisId", analysisId).
		Str("target", target).
		Logger()
}

// WithPipeline returns a logger with pipeline context.
func WithPipeline(analysisId, pipeline string) zerolog.Logger {
	return log.With().
		Str("analysisId", analysisId).
		Str("pipeline", pipeline).
		Logger()
}

// WithSource returns a logger with upstream source context.
func WithSource(provider, kind string) zerolog.Logger {
	return log.With().
		Str("provider", provider).
		Str("kind", kind).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
