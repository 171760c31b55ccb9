//go:build !(js && wasm)

package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/config"
	"context-injector/internal/infrastructure/env"
	"context-injector/internal/infrastructure/httpserver"
	"context-injector/internal/infrastructure/logger"
	"context-injector/internal/infrastructure/telemetry"
	"context-injector/internal/infrastructure/userinteraction"
	"context-injector/internal/usecase/interceptor"
)

const telemetryRingSize = 1000

type Container struct {
	Config   Config
	Env      *env.EnvService
	Logger   *logger.LoggerAdapter
	Clock    clock.Clock
	Store    *config.FileStore
	Settings entity.Settings
	Records  *telemetry.MemorySink
	Metrics  *telemetry.Metrics
	Sink     output.TelemetrySink
	Reporter output.AttemptReporter
	Console  *userinteraction.ConsoleReporter

	closers []func() error
}

type Config struct {
	SessionName   string
	SettingsPath  string
	TelemetryPath string
	DatabaseURL   string
	SnapshotDir   string
	// Console prints attempt progress to the terminal.
	Console bool
}

// ConfigFromEnv reads the container configuration from the environment.
func ConfigFromEnv(e *env.EnvService) Config {
	return Config{
		SessionName:   e.GetWithDefault("SESSION_NAME", "interceptor"),
		SettingsPath:  e.GetWithDefault("SETTINGS_PATH", "settings.json"),
		TelemetryPath: e.GetWithDefault("TELEMETRY_PATH", "log/telemetry.jsonl"),
		DatabaseURL:   e.Get("DATABASE_URL"),
		SnapshotDir:   e.GetWithDefault("SNAPSHOT_DIR", "log/snapshots"),
		Console:       e.GetBool("CONSOLE_REPORTER", true),
	}
}

func NewContainer(ctx context.Context, e *env.EnvService, cfg Config) (*Container, error) {
	defaults := config.DefaultsFromEnv(e)

	log, err := logger.NewLoggerAdapter(cfg.SessionName, defaults.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{
		Config:  cfg,
		Env:     e,
		Logger:  log,
		Clock:   clock.New(),
		Records: telemetry.NewMemorySink(telemetryRingSize),
		Metrics: telemetry.NewMetrics(),
	}
	c.closers = append(c.closers, log.Close)

	c.Store = config.NewFileStore(cfg.SettingsPath, defaults, c.Clock, log.WithField("component", "settings"))
	c.Settings, err = c.Store.Load(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	sinks := telemetry.MultiSink{c.Records, c.Metrics}
	if cfg.TelemetryPath != "" {
		file, err := telemetry.NewFileSink(cfg.TelemetryPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open telemetry file: %w", err)
		}
		c.closers = append(c.closers, file.Close)
		sinks = append(sinks, file)
	}
	if cfg.DatabaseURL != "" {
		pg, err := telemetry.NewPostgresSink(ctx, cfg.DatabaseURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open telemetry database: %w", err)
		}
		c.closers = append(c.closers, pg.Close)
		sinks = append(sinks, pg)
	}
	c.Sink = sinks

	reporters := telemetry.Reporters{c.Metrics}
	if cfg.Console {
		c.Console = userinteraction.NewConsoleReporter()
		reporters = append(reporters, c.Console)
	}
	c.Reporter = reporters

	return c, nil
}

// NewInterceptor builds an engine bound to doc with the container's stores,
// sinks and reporters.
func (c *Container) NewInterceptor(doc output.DocumentPort, snap output.Snapshotter) *interceptor.Controller {
	return NewEngine(EngineDeps{
		Doc:         doc,
		Snapshotter: snap,
		Store:       c.Store,
		Sink:        c.Sink,
		Reporter:    c.Reporter,
		Clock:       c.Clock,
		Logger:      c.Logger,
	}, c.Settings)
}

func (c *Container) NewServer(status httpserver.StatusSource) *httpserver.Server {
	return httpserver.New(status, c.Records, c.Metrics.Handler(), c.Logger.WithField("component", "http"))
}

func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
