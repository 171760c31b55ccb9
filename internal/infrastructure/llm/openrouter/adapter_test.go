package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/logger"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *OpenRouterAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig("test-key", "test/model")
	cfg.BaseURL = srv.URL
	cfg.Logger = logger.NewNopLogger()
	return NewOpenRouterAdapter(cfg)
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Model: "test/model",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
		},
	}
}

func TestEnhance_SendsFormattedPrompt(t *testing.T) {
	var got openai.ChatCompletionRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("  rewritten message  "))
	})

	res, err := a.Enhance(context.Background(), output.ContextRequest{
		Query: "fix my regex", UserID: "u1", Source: "chat-extension", TraceID: "t1",
	})
	require.NoError(t, err)

	assert.Equal(t, "rewritten message", res.Text)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "test/model", got.Model)
	assert.Equal(t, "u1", got.User)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "fix my regex")
	assert.Equal(t, "openrouter", a.Name())
}

func TestEnhance_APIErrorIsHTTP(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	})

	_, err := a.Enhance(context.Background(), output.ContextRequest{Query: "q"})
	require.Error(t, err)

	var fe *entity.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, entity.FetchHTTP, fe.Kind)
	assert.Equal(t, http.StatusTooManyRequests, fe.StatusCode)
}

func TestEnhance_EmptyChoicesIsMalformed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := a.Enhance(context.Background(), output.ContextRequest{Query: "q"})
	assert.ErrorIs(t, err, entity.ErrFetchMalformed)
}

func TestEnhance_BlankCompletionIsMalformed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("   "))
	})

	_, err := a.Enhance(context.Background(), output.ContextRequest{Query: "q"})
	assert.ErrorIs(t, err, entity.ErrFetchMalformed)
}

func TestEnhance_InvalidBodyIsMalformed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{not json`))
	})

	_, err := a.Enhance(context.Background(), output.ContextRequest{Query: "q"})
	assert.ErrorIs(t, err, entity.ErrFetchMalformed)
}

func TestEnhance_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.Enhance(ctx, output.ContextRequest{Query: "q"})
	assert.ErrorIs(t, err, entity.ErrFetchTimeout)
}

func TestEnhance_ConnectionRefusedIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := DefaultConfig("k", "m")
	cfg.BaseURL = url
	a := NewOpenRouterAdapter(cfg)

	_, err := a.Enhance(context.Background(), output.ContextRequest{Query: "q"})
	assert.ErrorIs(t, err, entity.ErrFetchNetwork)
}
