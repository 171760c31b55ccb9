package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/logger"
)

type stubBackend struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error)
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Enhance(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
	s.calls.Add(1)
	return s.fn(ctx, req)
}

type recordingSink struct {
	mu      sync.Mutex
	records []entity.APIRequestRecord
}

func (r *recordingSink) Append(ctx context.Context, rec entity.APIRequestRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingSink) all() []entity.APIRequestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.APIRequestRecord(nil), r.records...)
}

func succeed(text string) func(context.Context, output.ContextRequest) (*output.ContextResult, error) {
	return func(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
		return &output.ContextResult{Text: text, StatusCode: 200}, nil
	}
}

func failHTTP(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
	return nil, &entity.FetchError{Kind: entity.FetchHTTP, StatusCode: 502}
}

var attempt = entity.SubmissionAttempt{ID: 7, TraceID: "trace-7"}

func newFetcher(b *stubBackend, sink *recordingSink, cfg Config) *Fetcher {
	return New(b, sink, clock.New(), logger.NewNopLogger(), cfg)
}

func TestFetch_Success(t *testing.T) {
	var got output.ContextRequest
	b := &stubBackend{fn: func(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
		got = req
		return &output.ContextResult{Text: "enhanced", StatusCode: 200}, nil
	}}
	sink := &recordingSink{}
	f := newFetcher(b, sink, Config{Timeout: time.Second, Cooldown: time.Minute, UserID: "u1", Source: "chat-extension"})

	text, err := f.Fetch(context.Background(), attempt, "best pizza in rome")
	require.NoError(t, err)
	assert.Equal(t, "enhanced", text)
	assert.Equal(t, output.ContextRequest{Query: "best pizza in rome", UserID: "u1", Source: "chat-extension", TraceID: "trace-7"}, got)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, entity.RequestSuccess, recs[0].Status)
	assert.Equal(t, int64(7), recs[0].AttemptID)
	assert.Equal(t, 200, recs[0].HTTPStatus)
	assert.Nil(t, f.Cooldown().LastErrorAt)
}

func TestFetch_CooldownIdempotence(t *testing.T) {
	b := &stubBackend{fn: failHTTP}
	sink := &recordingSink{}
	f := newFetcher(b, sink, Config{Timeout: time.Second, Cooldown: time.Minute})

	_, err := f.Fetch(context.Background(), attempt, "q")
	assert.ErrorIs(t, err, entity.ErrFetchHTTP)
	require.NotNil(t, f.Cooldown().LastErrorAt)
	assert.True(t, f.Cooldown().Active(time.Now()))

	_, err = f.Fetch(context.Background(), attempt, "q")
	assert.ErrorIs(t, err, entity.ErrFetchCooldown)

	assert.EqualValues(t, 1, b.calls.Load())
	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, entity.RequestError, recs[0].Status)
	assert.Equal(t, "http", recs[0].ErrorKind)
	assert.Equal(t, 502, recs[0].HTTPStatus)
}

func TestFetch_CooldownExpires(t *testing.T) {
	b := &stubBackend{fn: failHTTP}
	f := newFetcher(b, &recordingSink{}, Config{Timeout: time.Second, Cooldown: 20 * time.Millisecond})

	_, err := f.Fetch(context.Background(), attempt, "q")
	require.ErrorIs(t, err, entity.ErrFetchHTTP)

	time.Sleep(30 * time.Millisecond)
	b.fn = succeed("ok")
	text, err := f.Fetch(context.Background(), attempt, "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestFetch_Timeout(t *testing.T) {
	b := &stubBackend{fn: func(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	sink := &recordingSink{}
	f := newFetcher(b, sink, Config{Timeout: 20 * time.Millisecond, Cooldown: 0})

	_, err := f.Fetch(context.Background(), attempt, "q")
	assert.ErrorIs(t, err, entity.ErrFetchTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	recs := sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "timeout", recs[0].ErrorKind)
	assert.GreaterOrEqual(t, recs[0].TotalDuration, 20*time.Millisecond)
}

func TestFetch_ClassifiesErrors(t *testing.T) {
	b := &stubBackend{fn: func(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
		return nil, errors.New("connection refused")
	}}
	f := newFetcher(b, &recordingSink{}, Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), attempt, "q")
	assert.ErrorIs(t, err, entity.ErrFetchNetwork)

	time.Sleep(time.Millisecond)
	b.fn = succeed("   ")
	_, err = f.Fetch(context.Background(), attempt, "q")
	assert.ErrorIs(t, err, entity.ErrFetchMalformed)
}

func TestConfigure_KeepsActiveCooldown(t *testing.T) {
	b := &stubBackend{fn: failHTTP}
	f := newFetcher(b, &recordingSink{}, Config{Timeout: time.Second, Cooldown: time.Minute})

	_, _ = f.Fetch(context.Background(), attempt, "q")
	f.Configure(b, Config{Timeout: 2 * time.Second, Cooldown: time.Minute, UserID: "other"})

	_, err := f.Fetch(context.Background(), attempt, "q")
	assert.ErrorIs(t, err, entity.ErrFetchCooldown)

	f.Configure(b, Config{Timeout: time.Second, Cooldown: time.Second})
	b.fn = succeed("fresh")
	text, err := f.Fetch(context.Background(), attempt, "q")
	require.NoError(t, err)
	assert.Equal(t, "fresh", text)
}

func TestFetch_NoBackend(t *testing.T) {
	sink := &recordingSink{}
	f := New(nil, sink, clock.New(), logger.NewNopLogger(), Config{Timeout: time.Second})

	_, err := f.Fetch(context.Background(), attempt, "hello")
	assert.ErrorIs(t, err, entity.ErrFetchNetwork)
	assert.Empty(t, sink.all())
}
