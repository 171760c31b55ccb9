// Package watcher keeps the resolved form/textarea/button triple current with a
// single mutation observation and reports when it appears or goes away.
package watcher

import (
	"context"
	"fmt"
	"sync"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/usecase/resolver"
)

var observeOptions = output.ObserveOptions{
	ChildList:       true,
	Subtree:         true,
	AttributeFilter: []string{"disabled", "class"},
}

type (
	ReadyFunc func(els output.ResolvedElements)
	LostFunc  func(previous output.ResolvedElements)
)

type Watcher struct {
	doc      output.DocumentPort
	resolver *resolver.Resolver
	logger   output.LoggerPort

	mu         sync.Mutex
	ctx        context.Context
	obs        output.Observation
	scope      output.Element
	generation int
	strategies []entity.SelectorStrategy
	last       output.ResolvedElements
	onReady    ReadyFunc
	onLost     LostFunc
}

func New(doc output.DocumentPort, res *resolver.Resolver, logger output.LoggerPort) *Watcher {
	return &Watcher{doc: doc, resolver: res, logger: logger}
}

// Start installs the observation. A second Start without Stop keeps the
// existing subscription and returns nil.
func (w *Watcher) Start(ctx context.Context, strategies []entity.SelectorStrategy, onReady ReadyFunc, onLost LostFunc) error {
	w.mu.Lock()
	if w.obs != nil {
		w.mu.Unlock()
		w.logger.Debug("watcher already started")
		return nil
	}

	w.ctx = ctx
	w.strategies = strategies
	w.onReady = onReady
	w.onLost = onLost
	w.last = w.resolver.Resolve(ctx, strategies)

	if err := w.observeLocked(ctx, w.stableScope(ctx, w.last)); err != nil {
		w.mu.Unlock()
		return err
	}
	current := w.last
	w.mu.Unlock()

	if current.Ready() {
		w.logger.Debug("elements ready", "strategy", current.StrategyName)
		onReady(current)
	} else {
		w.logger.Debug("no selector strategy matched yet")
	}
	return nil
}

// Stop disconnects the observation and clears the handle. Safe to repeat.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnectLocked()
	w.last = output.ResolvedElements{}
}

func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.obs != nil
}

// Current returns the last resolved triple without touching the DOM.
func (w *Watcher) Current() output.ResolvedElements {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Scope returns the element currently observed.
func (w *Watcher) Scope() output.Element {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scope
}

// SetStrategies replaces the strategy list and re-resolves immediately.
func (w *Watcher) SetStrategies(strategies []entity.SelectorStrategy) output.ResolvedElements {
	w.mu.Lock()
	w.strategies = strategies
	w.mu.Unlock()
	return w.Refresh()
}

// Refresh re-resolves now, firing callbacks as a mutation batch would.
func (w *Watcher) Refresh() output.ResolvedElements {
	w.mu.Lock()
	gen := w.generation
	w.mu.Unlock()
	return w.handle(gen)
}

func (w *Watcher) observeLocked(ctx context.Context, scope output.Element) error {
	if scope == nil {
		body, err := w.doc.Body(ctx)
		if err != nil {
			return fmt.Errorf("watch scope: %w", err)
		}
		scope = body
	}

	w.generation++
	gen := w.generation
	obs, err := w.doc.Observe(ctx, scope, observeOptions, func([]output.Mutation) { w.handle(gen) })
	if err != nil {
		return fmt.Errorf("observe %s: %w", scope.Handle(), err)
	}
	w.obs = obs
	w.scope = scope
	return nil
}

func (w *Watcher) disconnectLocked() {
	if w.obs != nil {
		w.obs.Disconnect()
	}
	w.obs = nil
	w.scope = nil
	w.generation++
}

func (w *Watcher) handle(gen int) output.ResolvedElements {
	w.mu.Lock()
	if w.obs == nil || gen != w.generation {
		last := w.last
		w.mu.Unlock()
		return last
	}
	ctx := w.ctx

	if ok, err := w.scope.Connected(ctx); err != nil || !ok {
		w.logger.Debug("watch scope detached, observing body", "scope", w.scope.Handle())
		w.disconnectLocked()
		if err := w.observeLocked(ctx, nil); err != nil {
			w.logger.Error("re-observe failed", "error", err)
		}
	}

	prev := w.last
	next := w.resolver.Resolve(ctx, w.strategies)
	w.last = next
	onReady, onLost := w.onReady, w.onLost
	w.mu.Unlock()

	if prev.SameAs(next) {
		return next
	}
	if prev.Ready() {
		w.logger.Debug("elements lost", "strategy", prev.StrategyName)
		if onLost != nil {
			onLost(prev)
		}
	}
	if next.Ready() {
		w.logger.Debug("elements ready", "strategy", next.StrategyName)
		if onReady != nil {
			onReady(next)
		}
	}
	return next
}

// stableScope picks the nearest ancestor of the form that carries an id or is
// <main>. nil means fall back to <body>.
func (w *Watcher) stableScope(ctx context.Context, els output.ResolvedElements) output.Element {
	if !els.Ready() {
		return nil
	}
	node, err := els.Form.Parent(ctx)
	for node != nil && err == nil {
		tag, _ := node.TagName(ctx)
		if tag == "body" || tag == "html" {
			return nil
		}
		if tag == "main" {
			return node
		}
		if id, ok, _ := node.Attribute(ctx, "id"); ok && id != "" {
			return node
		}
		node, err = node.Parent(ctx)
	}
	return nil
}
