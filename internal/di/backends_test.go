package di

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/logger"
)

func TestBackendFactory(t *testing.T) {
	factory := NewBackendFactory(clock.New(), logger.NewNopLogger())

	api := entity.DefaultSettings().API
	backend, err := factory(api)
	require.NoError(t, err)
	assert.Equal(t, "contextapi", backend.Name())

	api.Endpoint = ""
	_, err = factory(api)
	assert.Error(t, err)

	api = entity.DefaultSettings().API
	api.Backend = entity.BackendOpenRouter
	_, err = factory(api)
	assert.Error(t, err, "openrouter needs a key")

	api.APIKey = "sk-test"
	api.Model = "openai/gpt-4o-mini"
	backend, err = factory(api)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", backend.Name())

	api.Backend = "carrier-pigeon"
	_, err = factory(api)
	assert.Error(t, err)
}
