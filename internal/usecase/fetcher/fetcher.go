// Package fetcher performs one context-enhancement call per invocation, gated
// by a failure cooldown and recorded to telemetry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sony/gobreaker"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

type Config struct {
	Timeout  time.Duration
	Cooldown time.Duration
	UserID   string
	Source   string
}

func ConfigFrom(api entity.APISettings) Config {
	return Config{Timeout: api.Timeout, Cooldown: api.Cooldown, UserID: api.UserID, Source: api.Source}
}

type Fetcher struct {
	clock  clock.Clock
	sink   output.TelemetrySink
	logger output.LoggerPort

	mu          sync.RWMutex
	backend     output.ContextPort
	cfg         Config
	breaker     *gobreaker.CircuitBreaker
	lastErrorAt *time.Time
}

func New(backend output.ContextPort, sink output.TelemetrySink, clk clock.Clock, logger output.LoggerPort, cfg Config) *Fetcher {
	f := &Fetcher{clock: clk, sink: sink, logger: logger}
	f.Configure(backend, cfg)
	return f
}

// Configure swaps backend and policy. The cooldown gate is rebuilt only when
// the cooldown length changes, so an active cooldown survives unrelated edits.
func (f *Fetcher) Configure(backend output.ContextPort, cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = entity.DefaultFetchTimeout
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.backend = backend
	if f.breaker == nil || cfg.Cooldown != f.cfg.Cooldown {
		f.breaker = f.newBreaker(cfg.Cooldown)
	}
	f.cfg = cfg
}

func (f *Fetcher) newBreaker(cooldown time.Duration) *gobreaker.CircuitBreaker {
	timeout := cooldown
	if timeout <= 0 {
		// gobreaker treats zero as its 60s default.
		timeout = time.Nanosecond
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "context-fetch",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Debug("cooldown gate changed", "gate", name, "from", from.String(), "to", to.String())
		},
	})
}

// Cooldown reports the failure cooldown as last observed.
func (f *Fetcher) Cooldown() entity.CooldownState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st := entity.CooldownState{Cooldown: f.cfg.Cooldown}
	if f.lastErrorAt != nil {
		t := *f.lastErrorAt
		st.LastErrorAt = &t
	}
	return st
}

// Fetch issues at most one request. During a cooldown it fails with a
// cooldown FetchError without touching the network or telemetry.
func (f *Fetcher) Fetch(ctx context.Context, attempt entity.SubmissionAttempt, query string) (string, error) {
	f.mu.RLock()
	backend, cfg, breaker := f.backend, f.cfg, f.breaker
	f.mu.RUnlock()

	if backend == nil {
		return "", &entity.FetchError{Kind: entity.FetchNetwork, Message: "no context backend configured"}
	}

	log := f.logger.WithFields(map[string]any{"attempt": attempt.ID, "trace_id": attempt.TraceID, "backend": backend.Name()})

	var result *output.ContextResult
	var started time.Time
	_, err := breaker.Execute(func() (interface{}, error) {
		started = f.clock.Now()
		callCtx, cancel := f.clock.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		res, err := backend.Enhance(callCtx, output.ContextRequest{
			Query:   query,
			UserID:  cfg.UserID,
			Source:  cfg.Source,
			TraceID: attempt.TraceID,
		})
		if err == nil && (res == nil || strings.TrimSpace(res.Text) == "") {
			err = &entity.FetchError{Kind: entity.FetchMalformed, Message: "empty enhanced text"}
		}
		if err != nil {
			err = classify(callCtx, err)
		}
		result = res
		return nil, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Debug("context fetch skipped, cooldown active")
		return "", entity.NewFetchError(entity.FetchCooldown, err)
	}

	finished := f.clock.Now()
	f.record(ctx, attempt, backend.Name(), started, finished, result, err)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			f.mu.Lock()
			f.lastErrorAt = &finished
			f.mu.Unlock()
		}
		log.Warn("context fetch failed", "kind", entity.FetchErrorKindOf(err), "error", err)
		return "", err
	}

	log.Debug("context fetch succeeded", "duration", finished.Sub(started).String(), "length", len(result.Text))
	return result.Text, nil
}

// classify turns any backend error into a FetchError, mapping our own
// deadline to a timeout.
func classify(callCtx context.Context, err error) error {
	var fe *entity.FetchError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return entity.NewFetchError(entity.FetchTimeout, err)
	}
	return entity.NewFetchError(entity.FetchNetwork, err)
}

func (f *Fetcher) record(ctx context.Context, attempt entity.SubmissionAttempt, backend string, started, finished time.Time, res *output.ContextResult, err error) {
	rec := entity.APIRequestRecord{
		Timestamp:         started,
		ResponseTimestamp: finished,
		NetworkDuration:   finished.Sub(started),
		TotalDuration:     finished.Sub(started),
		Status:            entity.RequestSuccess,
		AttemptID:         attempt.ID,
		TraceID:           attempt.TraceID,
		Backend:           backend,
	}
	if res != nil {
		rec.HTTPStatus = res.StatusCode
		if !res.RespondedAt.IsZero() {
			rec.ResponseTimestamp = res.RespondedAt
			rec.NetworkDuration = res.RespondedAt.Sub(started)
		}
	}
	if err != nil {
		rec.Status = entity.RequestError
		rec.ErrorKind = string(entity.FetchErrorKindOf(err))
		var fe *entity.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			rec.HTTPStatus = fe.StatusCode
		}
	}

	if f.sink == nil {
		return
	}
	if err := f.sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		f.logger.Warn("telemetry append failed", "error", fmt.Errorf("append record: %w", err))
	}
}
