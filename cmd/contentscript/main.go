//go:build js && wasm

// Command contentscript is the engine compiled to WebAssembly and loaded by the
// browser extension into the chat page.
package main

import (
	"context"

	"github.com/benbjohnson/clock"

	"context-injector/internal/di"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/browser/jsdom"
	"context-injector/internal/infrastructure/logger"
	"context-injector/internal/infrastructure/telemetry"
)

func main() {
	log := logger.NewConsoleLogger(false)
	defer log.Close()

	ctx := context.Background()

	store := jsdom.NewChromeStore(jsdom.DefaultStorageKey, entity.DefaultSettings(), log.WithField("component", "settings"))
	settings, err := store.Load(ctx)
	if err != nil {
		log.Warn("using default settings", "error", err)
		settings = entity.DefaultSettings()
	}

	doc := jsdom.New(log.WithField("component", "dom"))
	records := telemetry.NewMemorySink(200)

	engine := di.NewEngine(di.EngineDeps{
		Doc:    doc,
		Store:  store,
		Sink:   records,
		Clock:  clock.New(),
		Logger: log,
	}, settings)

	// Run blocks for the lifetime of the page, which keeps the wasm instance alive.
	if err := engine.Run(ctx); err != nil {
		log.Error("engine stopped", "error", err)
	}
}
