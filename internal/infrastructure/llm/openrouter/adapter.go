// Package openrouter enhances messages by asking an OpenRouter-hosted model to
// rewrite them with the context they are missing.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/sashabaranov/go-openai"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/httpx"
	"context-injector/internal/infrastructure/prompts"
)

var _ output.ContextPort = (*OpenRouterAdapter)(nil)

type OpenRouterAdapter struct {
	client      *openai.Client
	model       string
	temperature float32
	template    *prompts.EnhanceTemplate
	clock       clock.Clock
	logger      output.LoggerPort
}

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	Prompt      string
	HTTPClient  *http.Client
	Clock       clock.Clock
	Logger      output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:      apiKey,
		Model:       model,
		BaseURL:     "https://openrouter.ai/api/v1",
		Temperature: 0.2,
	}
}

func NewOpenRouterAdapter(cfg Config) *OpenRouterAdapter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else if cfg.Logger != nil {
		config.HTTPClient = httpx.NewClient(cfg.Logger, 0)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &OpenRouterAdapter{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		template:    prompts.NewEnhanceTemplate(cfg.Prompt),
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

func (a *OpenRouterAdapter) Name() string { return string(entity.BackendOpenRouter) }

func (a *OpenRouterAdapter) Enhance(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
	prompt, err := a.template.Format(req.Query, req.Source)
	if err != nil {
		return nil, entity.NewFetchError(entity.FetchMalformed, err)
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: a.temperature,
		User:        req.UserID,
	})
	if err != nil {
		return nil, a.classify(ctx, err)
	}
	respondedAt := a.clock.Now()

	if len(resp.Choices) == 0 {
		return nil, &entity.FetchError{Kind: entity.FetchMalformed, StatusCode: http.StatusOK, Message: "no choices in response"}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, &entity.FetchError{Kind: entity.FetchMalformed, StatusCode: http.StatusOK, Message: "empty completion"}
	}

	if a.logger != nil {
		a.logger.Debug("Completion received",
			"model", resp.Model,
			"traceId", req.TraceID,
			"promptTokens", resp.Usage.PromptTokens,
			"completionTokens", resp.Usage.CompletionTokens)
	}

	return &output.ContextResult{Text: text, StatusCode: http.StatusOK, RespondedAt: respondedAt}, nil
}

func (a *OpenRouterAdapter) classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &entity.FetchError{Kind: entity.FetchHTTP, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &entity.FetchError{Kind: entity.FetchHTTP, StatusCode: reqErr.HTTPStatusCode, Err: reqErr.Err}
	}

	if ctx.Err() == nil && !isTransport(err) {
		return &entity.FetchError{Kind: entity.FetchMalformed, Err: fmt.Errorf("decode completion: %w", err)}
	}
	return httpx.TransportError(ctx, err)
}

func isTransport(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
