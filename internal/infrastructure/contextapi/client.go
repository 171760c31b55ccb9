// Package contextapi is the HTTP client for the context-enhancement service.
package contextapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/httpx"
)

var _ output.ContextPort = (*Client)(nil)

const maxResponseBytes = 1 << 20

type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     output.LoggerPort
}

type Client struct {
	endpoint string
	http     *http.Client
	clock    clock.Clock
	logger   output.LoggerPort
}

type enhanceRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Source string `json:"source"`
}

type enhanceResponse struct {
	Success      *bool  `json:"success"`
	EnhancedText string `json:"enhanced_text"`
	Context      string `json:"context"`
	Error        string `json:"error"`
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpx.NewClient(cfg.Logger, 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Client{endpoint: cfg.Endpoint, http: cfg.HTTPClient, clock: cfg.Clock, logger: cfg.Logger}
}

func (c *Client) Name() string { return string(entity.BackendContextAPI) }

func (c *Client) Enhance(ctx context.Context, req output.ContextRequest) (*output.ContextResult, error) {
	body, err := json.Marshal(enhanceRequest{Query: req.Query, UserID: req.UserID, Source: req.Source})
	if err != nil {
		return nil, entity.NewFetchError(entity.FetchMalformed, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, entity.NewFetchError(entity.FetchNetwork, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.TraceID != "" {
		httpReq.Header.Set("X-Trace-Id", req.TraceID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, httpx.TransportError(ctx, err)
	}
	defer resp.Body.Close()
	respondedAt := c.clock.Now()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, httpx.TransportError(ctx, fmt.Errorf("read response: %w", err))
	}

	var parsed enhanceResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &entity.FetchError{Kind: entity.FetchHTTP, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			fe.Message = parsed.Error
		}
		return nil, fe
	}
	if decodeErr != nil {
		return nil, &entity.FetchError{Kind: entity.FetchMalformed, StatusCode: resp.StatusCode, Err: decodeErr}
	}
	if parsed.Success != nil && !*parsed.Success {
		return nil, &entity.FetchError{Kind: entity.FetchHTTP, StatusCode: resp.StatusCode, Message: parsed.Error}
	}

	text := parsed.EnhancedText
	if text == "" {
		text = parsed.Context
	}
	if strings.TrimSpace(text) == "" {
		return nil, &entity.FetchError{Kind: entity.FetchMalformed, StatusCode: resp.StatusCode, Message: "response carries no enhanced_text or context"}
	}

	return &output.ContextResult{Text: text, StatusCode: resp.StatusCode, RespondedAt: respondedAt}, nil
}
