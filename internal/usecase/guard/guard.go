// Package guard serializes submission attempts: at most one attempt is active
// at a time and a safety timer force-releases it if it never finishes.
package guard

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

type Guard struct {
	mu       sync.Mutex
	clock    clock.Clock
	logger   output.LoggerPort
	timeout  time.Duration
	nextID   int64
	current  *entity.SubmissionAttempt
	timer    *clock.Timer
	onExpire func(entity.SubmissionAttempt)
}

func New(clk clock.Clock, timeout time.Duration, logger output.LoggerPort) *Guard {
	if timeout <= 0 {
		timeout = entity.DefaultGuardTimeout
	}
	return &Guard{clock: clk, timeout: timeout, logger: logger}
}

// OnExpire registers the hook called, outside the lock, after the safety
// timer aborted an attempt.
func (g *Guard) OnExpire(fn func(entity.SubmissionAttempt)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpire = fn
}

// SetTimeout applies to attempts acquired afterwards.
func (g *Guard) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeout = d
}

// TryAcquire starts a new attempt, or returns nil while another is active.
func (g *Guard) TryAcquire(trigger entity.TriggerSource) *entity.SubmissionAttempt {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil {
		return nil
	}

	g.nextID++
	attempt := &entity.SubmissionAttempt{
		ID:        g.nextID,
		TraceID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: g.clock.Now(),
		Status:    entity.AttemptPending,
	}
	g.current = attempt

	id := attempt.ID
	g.timer = g.clock.AfterFunc(g.timeout, func() { g.expire(id) })

	cp := *attempt
	return &cp
}

// Release frees the guard if id is the active attempt. Stale ids are ignored.
func (g *Guard) Release(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil || g.current.ID != id {
		return false
	}
	g.stopTimerLocked()
	g.current = nil
	return true
}

// Current returns a copy of the active attempt.
func (g *Guard) Current() (entity.SubmissionAttempt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return entity.SubmissionAttempt{}, false
	}
	return *g.current, true
}

func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// SetStatus records progress of the active attempt so an expiry reports the
// stage it was stuck in.
func (g *Guard) SetStatus(id int64, status entity.AttemptStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil && g.current.ID == id {
		g.current.Status = status
	}
}

func (g *Guard) expire(id int64) {
	g.mu.Lock()
	if g.current == nil || g.current.ID != id {
		g.mu.Unlock()
		return
	}
	attempt := *g.current
	stage := attempt.Status
	attempt.Status = entity.AttemptAborted
	attempt.AbortReason = entity.AbortGuardTimeout
	attempt.FinishedAt = g.clock.Now()
	g.current = nil
	g.timer = nil
	hook := g.onExpire
	g.mu.Unlock()

	g.logger.Warn("submission guard expired, attempt aborted",
		"attempt", attempt.ID,
		"trace_id", attempt.TraceID,
		"stage", stage,
		"after", attempt.Duration().String(),
	)
	if hook != nil {
		hook(attempt)
	}
}

func (g *Guard) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
