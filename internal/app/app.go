// Package app holds process-wide state shared by the service's listeners.
package app

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-video-digest-service/internal/config"
	"ai-video-digest-service/internal/observability/logging"
	"ai-video-digest-service/internal/service/analysis"
)

const serviceName = "ai-video-digest-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Analyzer    *analysis.Analyzer

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration and
// initializes the global logger. The caller sets Analyzer once the sources
// are built.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("AI video digest application created")
	return a
}

// setupLogger configures zerolog for the service. ZEROLOG_LOG_LEVEL
// overrides the configured level; ENV=dev selects console output.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	if a.Cfg != nil {
		logCfg.Level = a.Cfg.Observability.LogLevel
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			logCfg.Level = strings.ToLower(envLevel)
		}
	}
	if os.Getenv("ENV") == "dev" {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	log.Logger = log.Logger.With().Str("service", serviceName).Logger()
	a.Logger = log.Logger.With().Str("component", "application").Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start marks the application ready to serve traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI video digest service starting")

	return nil
}

// Ready reports whether the application has started and is not shutting down.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown marks the application not ready. Listeners are stopped by the
// caller.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("AI video digest service shutting down")
}
