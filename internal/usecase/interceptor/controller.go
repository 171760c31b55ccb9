// Package interceptor is the state machine that suppresses a host page
// submission, enhances the message, writes it back and re-submits it.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/input"
	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/usecase/fetcher"
	"context-injector/internal/usecase/guard"
	"context-injector/internal/usecase/injector"
	"context-injector/internal/usecase/watcher"
	"context-injector/internal/util"
)

var _ input.Interceptor = (*Controller)(nil)

// BackendFactory builds the context backend for a set of API settings.
type BackendFactory func(api entity.APISettings) (output.ContextPort, error)

type Deps struct {
	Doc         output.DocumentPort
	Watcher     *watcher.Watcher
	Fetcher     *fetcher.Fetcher
	Guard       *guard.Guard
	Injector    *injector.Injector
	Clock       clock.Clock
	Logger      output.LoggerPort
	Reporter    output.AttemptReporter
	Snapshotter output.Snapshotter
	Backends    BackendFactory
	Store       output.SettingsStore
}

type attemptRun struct {
	entity.SubmissionAttempt
	ctx    context.Context
	cancel context.CancelFunc
	wrote  bool
}

type Controller struct {
	Deps

	events chan event
	done   chan struct{}

	mu       sync.RWMutex
	state    entity.EngineState
	settings entity.Settings
	last     *entity.SubmissionAttempt
	strategy string

	// owned by the loop goroutine
	ctx          context.Context
	elements     output.ResolvedElements
	interception output.Interception
	attempt      *attemptRun
}

func New(deps Deps, settings entity.Settings) *Controller {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Controller{
		Deps:     deps,
		events:   make(chan event, 128),
		done:     make(chan struct{}),
		state:    entity.StateIdle,
		settings: settings.Normalize(),
	}
}

func (c *Controller) State() entity.EngineState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastAttempt returns the most recently finished attempt.
func (c *Controller) LastAttempt() (entity.SubmissionAttempt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return entity.SubmissionAttempt{}, false
	}
	return *c.last, true
}

func (c *Controller) Settings() entity.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// ActiveStrategy names the selector strategy currently intercepted, or "".
func (c *Controller) ActiveStrategy() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

// Apply queues a settings change; it takes effect on the loop.
func (c *Controller) Apply(settings entity.Settings) {
	c.post(event{kind: settingsChanged, settings: settings})
}

// Run drives the engine until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)

	c.Guard.OnExpire(func(a entity.SubmissionAttempt) {
		c.post(event{kind: guardExpired, attemptID: a.ID, expired: a})
	})

	if rn, ok := c.Doc.(output.ReloadNotifier); ok {
		reloads := rn.Reloads()
		util.SafeGo(c.Logger, "reload-watch", func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-reloads:
					if !ok {
						return
					}
					c.post(event{kind: documentReloaded})
				}
			}
		})
	}

	if c.Store != nil {
		updates := c.Store.Watch(ctx)
		util.SafeGo(c.Logger, "settings-watch", func() {
			for s := range updates {
				c.Apply(s)
			}
		})
	}

	c.applySettings(c.Settings(), true)
	c.Logger.Info("interceptor running", "enabled", c.Settings().Enabled)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) handle(ev event) {
	err := util.SafeCall(func() error {
		switch ev.kind {
		case submitTriggered:
			c.onSubmitTriggered(ev.trigger)
		case fetchResolved:
			c.onFetchResolved(ev)
		case injectionDone:
			c.onInjectionDone(ev)
		case elementsLost:
			c.onElementsLost()
		case elementsReady:
			c.onElementsReady(ev.elements)
		case guardExpired:
			c.onGuardExpired(ev.expired)
		case settingsChanged:
			c.applySettings(ev.settings, false)
		case documentReloaded:
			c.onDocumentReloaded()
		}
		return nil
	})
	if err != nil {
		c.Logger.Error("event handler failed", "event", ev.kind.String(), "error", err)
		if c.attempt != nil {
			c.abort(entity.AbortInjection)
		}
	}
}

func (c *Controller) onSubmitTriggered(trigger entity.TriggerSource) {
	if c.attempt != nil {
		// the guard may have expired before its event reached the loop
		if held, ok := c.Guard.Current(); !ok || held.ID != c.attempt.ID {
			c.abort(entity.AbortGuardTimeout)
		}
	}
	a := c.Guard.TryAcquire(trigger)
	if a == nil {
		c.Logger.Debug("submission already in progress, duplicate suppressed", "trigger", trigger)
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.attempt = &attemptRun{SubmissionAttempt: *a, ctx: ctx, cancel: cancel}
	log := c.attemptLogger()
	log.Info("submission intercepted", "trigger", trigger)
	c.setState(entity.StateIntercepted)

	els := c.Watcher.Refresh()
	if !els.Ready() {
		c.abort(entity.AbortElementsLost)
		return
	}
	original, err := c.Injector.Read(c.ctx, els.Textarea)
	if err != nil {
		log.Warn("reading message failed", "error", err)
		c.abort(entity.AbortElementsLost)
		return
	}
	c.attempt.OriginalText = original

	if strings.TrimSpace(original) == "" {
		log.Debug("empty message, passing through")
		c.attempt.Status = entity.AttemptEnhancing
		c.setState(entity.StateEnhancing)
		c.onFetchResolved(event{kind: fetchResolved, attemptID: a.ID})
		return
	}

	c.attempt.Status = entity.AttemptEnhancing
	c.Guard.SetStatus(a.ID, entity.AttemptEnhancing)
	c.setState(entity.StateEnhancing)

	api := c.Settings().API
	snapshot := c.attempt.SubmissionAttempt
	util.SafeGo(c.Logger, "context-fetch", func() {
		out := fetchWithRetry(ctx, c.Clock, api, c.Fetcher.Fetch, snapshot, original, func(err error, wait time.Duration) {
			log.Debug("context fetch retry scheduled", "error", err, "wait", wait.String())
		})
		c.post(event{kind: fetchResolved, attemptID: snapshot.ID, fetch: out})
	})
}

func (c *Controller) onFetchResolved(ev event) {
	if !c.live(ev.attemptID) {
		c.Logger.Debug("discarding stale fetch result", "attempt", ev.attemptID)
		return
	}
	log := c.attemptLogger()
	a := c.attempt
	a.FetchCalls = ev.fetch.calls

	text := a.OriginalText
	if ev.fetch.err == nil && ev.fetch.text != "" {
		text = ev.fetch.text
		a.Enhanced = true
	} else if ev.fetch.err != nil {
		log.Info("falling back to original message", "reason", entity.FetchErrorKindOf(ev.fetch.err), "calls", ev.fetch.calls)
	}
	a.EnhancedText = text

	els := c.Watcher.Refresh()
	if !els.Ready() {
		c.abort(entity.AbortElementsLost)
		return
	}

	a.Status = entity.AttemptInjecting
	c.Guard.SetStatus(a.ID, entity.AttemptInjecting)
	if !a.Enhanced {
		c.onInjectionDone(event{kind: injectionDone, attemptID: a.ID})
		return
	}

	a.wrote = true
	mode := c.Settings().InjectMode
	id, ctx := a.ID, a.ctx
	util.SafeGo(c.Logger, "inject", func() {
		err := c.Injector.Inject(ctx, els.Textarea, text, mode)
		c.post(event{kind: injectionDone, attemptID: id, err: err})
	})
}

func (c *Controller) onInjectionDone(ev event) {
	if !c.live(ev.attemptID) {
		c.Logger.Debug("discarding stale injection result", "attempt", ev.attemptID)
		return
	}
	log := c.attemptLogger()
	if ev.err != nil {
		log.Warn("injection failed", "error", ev.err)
		c.abort(entity.AbortInjection)
		return
	}
	c.setState(entity.StateInjected)

	els := c.Watcher.Refresh()
	if !els.Ready() {
		c.abort(entity.AbortElementsLost)
		return
	}
	if reason, blocked := resubmitBlocked(c.ctx, els.SubmitButton); blocked {
		if reason == entity.AbortButtonDisabled {
			log.Warn("submit button disabled, leaving message for manual submit")
		} else {
			log.Warn("submit button vanished before resubmission")
		}
		c.abort(reason)
		return
	}
	if c.interception == nil || !c.elements.SameAs(els) {
		c.onElementsReady(els)
	}

	c.attempt.Status = entity.AttemptResubmitting
	c.Guard.SetStatus(c.attempt.ID, entity.AttemptResubmitting)
	c.setState(entity.StateResubmitting)

	target := els.SubmitButton
	if c.attempt.Trigger == entity.TriggerSubmit {
		target = els.Form
	}
	if c.interception == nil {
		c.abort(entity.AbortResubmit)
		return
	}
	if err := c.interception.Resubmit(c.ctx, target, c.attempt.Trigger); err != nil {
		log.Warn("resubmission failed", "error", err)
		c.abort(entity.AbortResubmit)
		return
	}
	c.finish(entity.AttemptCompleted, "")
	c.setState(entity.StateIdle)
}

func (c *Controller) onElementsLost() {
	c.closeInterception()

	if c.attempt == nil {
		return
	}
	if c.Watcher.Current().Ready() {
		// replaced rather than removed; the next stage re-resolves
		return
	}
	c.abort(entity.AbortElementsLost)
}

func (c *Controller) onElementsReady(els output.ResolvedElements) {
	if !c.Settings().Enabled || !els.Ready() {
		return
	}
	if c.interception != nil && c.elements.SameAs(els) {
		return
	}
	c.closeInterception()

	ic, err := c.Doc.Intercept(c.ctx, els, func(trigger entity.TriggerSource) {
		c.post(event{kind: submitTriggered, trigger: trigger})
	})
	if err != nil {
		c.Logger.Warn("installing interception failed", "strategy", els.StrategyName, "error", err)
		return
	}
	c.interception = ic
	c.elements = els
	c.mu.Lock()
	c.strategy = els.StrategyName
	c.mu.Unlock()
	c.Logger.Info("intercepting submissions", "strategy", els.StrategyName)
}

func (c *Controller) onGuardExpired(expired entity.SubmissionAttempt) {
	if !c.current(expired.ID) {
		return
	}
	c.abort(entity.AbortGuardTimeout)
}

func (c *Controller) applySettings(s entity.Settings, initial bool) {
	s = s.Normalize()
	prev := c.Settings()

	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()

	c.Logger.SetDebug(s.Debug)
	for _, w := range s.Warnings() {
		c.Logger.Warn("settings: " + w)
	}
	c.Guard.SetTimeout(s.GuardTimeout)
	c.Injector.SetTypingDelay(s.TypingDelayMin, s.TypingDelayMax)

	if c.Backends != nil && (initial || prev.API != s.API) {
		backend, err := c.Backends(s.API)
		if err != nil {
			c.Logger.Error("context backend unavailable, keeping previous", "backend", s.API.Backend, "error", err)
		} else {
			c.Fetcher.Configure(backend, fetcher.ConfigFrom(s.API))
		}
	}

	if !s.Enabled {
		if c.attempt != nil {
			c.abort(entity.AbortDisabled)
		}
		c.closeInterception()
		c.Watcher.Stop()
		c.setState(entity.StateIdle)
		c.Logger.Info("enhancement disabled")
		return
	}

	if !c.Watcher.Active() {
		c.startWatcher(s.Strategies)
		return
	}
	if !initial {
		c.Watcher.SetStrategies(s.Strategies)
	}
}

func (c *Controller) startWatcher(strategies []entity.SelectorStrategy) {
	err := c.Watcher.Start(c.ctx, strategies,
		func(els output.ResolvedElements) { c.post(event{kind: elementsReady, elements: els}) },
		func(output.ResolvedElements) { c.post(event{kind: elementsLost}) },
	)
	if err != nil {
		c.Logger.Error("element watcher failed to start", "error", err)
	}
}

// onDocumentReloaded rebuilds the observation and interception after the
// page replaced its document; every handle into the old one is dead.
func (c *Controller) onDocumentReloaded() {
	c.Logger.Info("page document replaced, reattaching")
	if c.attempt != nil {
		c.abort(entity.AbortElementsLost)
	}
	c.closeInterception()
	c.Watcher.Stop()
	if s := c.Settings(); s.Enabled {
		c.startWatcher(s.Strategies)
	}
}

// abort ends the active attempt without resubmitting. A message the engine
// already overwrote is put back to what the user typed.
func (c *Controller) abort(reason entity.AbortReason) {
	a := c.attempt
	if a == nil {
		return
	}
	a.cancel()
	c.attemptLogger().Warn("attempt aborted", "reason", reason, "stage", a.Status)

	if a.wrote {
		if els := c.Watcher.Current(); els.Ready() {
			if err := c.Injector.Inject(c.ctx, els.Textarea, a.OriginalText, entity.InjectInstant); err != nil && !errors.Is(err, entity.ErrElementGone) {
				c.attemptLogger().Warn("restoring original message failed", "error", err)
			}
		}
	}

	if c.Settings().Debug && c.Snapshotter != nil {
		id := a.ID
		util.SafeGo(c.Logger, "snapshot", func() {
			path, err := c.Snapshotter.Snapshot(context.WithoutCancel(c.ctx), fmt.Sprintf("attempt-%d-%s", id, reason))
			if err != nil {
				c.Logger.Debug("debug snapshot failed", "error", err)
				return
			}
			c.Logger.Debug("debug snapshot saved", "path", path)
		})
	}

	c.finish(entity.AttemptAborted, reason)
	c.setState(entity.StateAborted)
}

func (c *Controller) finish(status entity.AttemptStatus, reason entity.AbortReason) {
	a := c.attempt
	a.cancel()
	c.Guard.Release(a.ID)
	a.Status = status
	a.AbortReason = reason
	a.FinishedAt = c.Clock.Now()

	done := a.SubmissionAttempt
	c.mu.Lock()
	c.last = &done
	c.mu.Unlock()
	c.attempt = nil

	if status == entity.AttemptCompleted {
		c.Logger.Info("attempt completed", "attempt", done.ID, "enhanced", done.Enhanced, "fetch_calls", done.FetchCalls, "duration", done.Duration().String())
	}
	if c.Reporter != nil {
		c.Reporter.AttemptFinished(done)
	}
}

func (c *Controller) setState(to entity.EngineState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return
	}
	var id int64
	if c.attempt != nil {
		id = c.attempt.ID
	} else if last, ok := c.LastAttempt(); ok {
		id = last.ID
	}
	c.Logger.Debug("state changed", "attempt", id, "from", from, "to", to)
	if c.Reporter != nil {
		c.Reporter.StateChanged(id, from, to)
	}
}

func (c *Controller) current(id int64) bool {
	return c.attempt != nil && c.attempt.ID == id
}

// live is current plus a check that the guard still holds the attempt. An
// attempt whose safety timer already fired is aborted here, before a queued
// result can act on it.
func (c *Controller) live(id int64) bool {
	if !c.current(id) {
		return false
	}
	if held, ok := c.Guard.Current(); !ok || held.ID != id {
		c.abort(entity.AbortGuardTimeout)
		return false
	}
	return true
}

// resubmitBlocked reports why the submit button cannot be pressed, if it
// cannot. A button that can no longer be inspected counts as lost.
func resubmitBlocked(ctx context.Context, button output.Element) (entity.AbortReason, bool) {
	disabled, err := button.Disabled(ctx)
	switch {
	case err != nil:
		return entity.AbortElementsLost, true
	case disabled:
		return entity.AbortButtonDisabled, true
	}
	return "", false
}

func (c *Controller) attemptLogger() output.LoggerPort {
	if c.attempt == nil {
		return c.Logger
	}
	return c.Logger.WithFields(map[string]any{"attempt": c.attempt.ID, "trace_id": c.attempt.TraceID})
}

func (c *Controller) shutdown() {
	if c.attempt != nil {
		c.abort(entity.AbortDisabled)
	}
	c.closeInterception()
	c.Watcher.Stop()
	c.Logger.Info("interceptor stopped")
}

func (c *Controller) closeInterception() {
	if c.interception != nil {
		if err := c.interception.Close(); err != nil {
			c.Logger.Debug("closing interception failed", "error", err)
		}
		c.interception = nil
	}
	c.elements = output.ResolvedElements{}
	c.mu.Lock()
	c.strategy = ""
	c.mu.Unlock()
}
