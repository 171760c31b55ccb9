package interceptor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"context-injector/internal/domain/entity"
)

// clockTimer drives backoff's waits from the engine clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}

type fetchFunc func(ctx context.Context, attempt entity.SubmissionAttempt, query string) (string, error)

type fetchOutcome struct {
	text  string
	calls int
	err   error
}

// newBackOff yields base, base*factor, base*factor^2 ... for maxAttempts-1 retries.
func newBackOff(clk clock.Clock, api entity.APISettings) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = api.BackoffBase
	b.Multiplier = api.BackoffFactor
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(float64(api.BackoffBase) * math.Pow(api.BackoffFactor, float64(max(api.MaxRetries, 1))))
	b.MaxElapsedTime = 0
	b.Clock = clk
	b.Reset()

	retries := api.MaxRetries - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// fetchWithRetry calls fetch until it succeeds, the retry budget is spent, a
// cooldown short-circuits, or ctx ends.
func fetchWithRetry(ctx context.Context, clk clock.Clock, api entity.APISettings, fetch fetchFunc, attempt entity.SubmissionAttempt, query string, notify backoff.Notify) fetchOutcome {
	var out fetchOutcome
	op := func() error {
		out.calls++
		text, err := fetch(ctx, attempt, query)
		if err == nil {
			out.text = text
			return nil
		}
		if errors.Is(err, entity.ErrFetchCooldown) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(newBackOff(clk, api), ctx)
	out.err = backoff.RetryNotifyWithTimer(op, policy, notify, &clockTimer{clock: clk})
	return out
}
