package di

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/contextapi"
	"context-injector/internal/infrastructure/httpx"
	"context-injector/internal/infrastructure/llm/openrouter"
	"context-injector/internal/usecase/interceptor"
)

// NewBackendFactory returns the factory the controller uses to rebuild its
// context backend whenever the API settings change.
func NewBackendFactory(clk clock.Clock, log output.LoggerPort) interceptor.BackendFactory {
	return func(api entity.APISettings) (output.ContextPort, error) {
		switch api.Backend {
		case entity.BackendContextAPI, "":
			if api.Endpoint == "" {
				return nil, fmt.Errorf("context api endpoint is not configured")
			}
			return contextapi.New(contextapi.Config{
				Endpoint:   api.Endpoint,
				HTTPClient: httpx.NewClient(log, 0),
				Clock:      clk,
				Logger:     log,
			}), nil

		case entity.BackendOpenRouter:
			if api.APIKey == "" {
				return nil, fmt.Errorf("openrouter backend needs OPENROUTER_API_KEY")
			}
			cfg := openrouter.DefaultConfig(api.APIKey, api.Model)
			if api.Endpoint != "" && api.Endpoint != entity.DefaultSettings().API.Endpoint {
				cfg.BaseURL = api.Endpoint
			}
			cfg.HTTPClient = httpx.NewClient(log, 0)
			cfg.Clock = clk
			cfg.Logger = log
			return openrouter.NewOpenRouterAdapter(cfg), nil
		}
		return nil, fmt.Errorf("unknown context backend %q", api.Backend)
	}
}
