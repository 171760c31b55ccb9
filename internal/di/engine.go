package di

import (
	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/usecase/fetcher"
	"context-injector/internal/usecase/guard"
	"context-injector/internal/usecase/injector"
	"context-injector/internal/usecase/interceptor"
	"context-injector/internal/usecase/resolver"
	"context-injector/internal/usecase/watcher"
)

type EngineDeps struct {
	Doc         output.DocumentPort
	Snapshotter output.Snapshotter
	Store       output.SettingsStore
	Sink        output.TelemetrySink
	Reporter    output.AttemptReporter
	Clock       clock.Clock
	Logger      output.LoggerPort
	Backends    interceptor.BackendFactory
}

// NewEngine assembles the six components around one document. The fetcher
// starts without a backend; the controller builds it from settings on Run.
func NewEngine(deps EngineDeps, settings entity.Settings) *interceptor.Controller {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Backends == nil {
		deps.Backends = NewBackendFactory(deps.Clock, deps.Logger)
	}
	settings = settings.Normalize()

	res := resolver.New(deps.Doc, deps.Logger.WithField("component", "resolver"))
	return interceptor.New(interceptor.Deps{
		Doc:         deps.Doc,
		Watcher:     watcher.New(deps.Doc, res, deps.Logger.WithField("component", "watcher")),
		Fetcher:     fetcher.New(nil, deps.Sink, deps.Clock, deps.Logger.WithField("component", "fetcher"), fetcher.ConfigFrom(settings.API)),
		Guard:       guard.New(deps.Clock, settings.GuardTimeout, deps.Logger.WithField("component", "guard")),
		Injector:    injector.New(deps.Clock, deps.Logger.WithField("component", "injector")),
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		Reporter:    deps.Reporter,
		Snapshotter: deps.Snapshotter,
		Backends:    deps.Backends,
		Store:       deps.Store,
	}, settings)
}
