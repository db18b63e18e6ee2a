//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"time"

	"github.com/hilo-software/strip-control/internal/config"
	domain "github.com/hilo-software/strip-control/internal/domain/strip"
	"github.com/hilo-software/strip-control/internal/logger"
	"github.com/hilo-software/strip-control/internal/metrics"
)

// Settings are the command line overrides shared by every command.
type Settings struct {
	// ConfigPath to YAML settings file; empty means the optional default file.
	ConfigPath string
	// LogFile overrides the log file from the config when specified.
	LogFile string
	// LogLevel overrides the log level from the config when specified.
	LogLevel string
	// MetricsFile overrides the metrics file from the config when specified.
	MetricsFile string
	// Timeout overrides the per-request device timeout when positive.
	Timeout time.Duration
	// SingleInstance refuses to run next to another process of the same binary.
	SingleInstance bool
}

// Session is the ambient state of one invocation.
type Session struct {
	// Config is the validated configuration with overrides applied.
	Config *config.Config
	// Actor is who ran the command, nil when it could not be detected.
	Actor *domain.Actor

	// closeLog flushes and detaches the log file sink.
	closeLog func()
}

// Open loads the configuration, applies the overrides, sets up logging and
// returns a context carrying a logger named after the command.
func Open(ctx context.Context, name string, settings *Settings) (context.Context, *Session, error) {
	cfg, err := config.Load(settings.ConfigPath)
	if err != nil {
		return ctx, nil, fmt.Errorf("load configuration: %w", err)
	}

	applyOverrides(cfg, settings)

	// Overrides may carry an invalid log level.
	if err = config.Validate(cfg); err != nil {
		return ctx, nil, err
	}

	level, _ := logger.ParseLogLevel(cfg.LogLevel)
	session := &Session{
		Config:   cfg,
		closeLog: logger.Setup(level, cfg.LogFile),
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, name)

	if settings.SingleInstance {
		if err = EnsureSingleInstance(); err != nil {
			session.Close()
			return ctx, nil, err
		}
	}

	// Identify current user and hostname for audit logging.
	if session.Actor, err = DetectActor(); err != nil {
		logger.WarnKV(ctx, "Could not detect actor", "error", err)
	}

	return ctx, session, nil
}

// Close flushes the log file.
func (s *Session) Close() {
	if s != nil && s.closeLog != nil {
		s.closeLog()
	}
}

// WriteMetrics writes the run metrics when a metrics file is configured.
// A failure is logged and does not change the outcome of the run.
func (s *Session) WriteMetrics(ctx context.Context, run *metrics.Run) {
	if s.Config.MetricsFile == "" {
		return
	}

	if err := run.WriteFile(s.Config.MetricsFile); err != nil {
		logger.WarnKV(ctx, "Could not write metrics", "metrics_file", s.Config.MetricsFile, "error", err)
		return
	}

	logger.DebugKV(ctx, "Metrics written", "metrics_file", s.Config.MetricsFile)
}

// applyOverrides copies non-empty command line values over the configuration.
func applyOverrides(cfg *config.Config, settings *Settings) {
	if settings.LogFile != "" {
		cfg.LogFile = settings.LogFile
	}

	if settings.LogLevel != "" {
		cfg.LogLevel = settings.LogLevel
	}

	if settings.MetricsFile != "" {
		cfg.MetricsFile = settings.MetricsFile
	}

	if settings.Timeout > 0 {
		cfg.Timeout = settings.Timeout
	}
}
