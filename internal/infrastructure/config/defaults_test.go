package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/env"
)

func TestDefaultsFromEnv(t *testing.T) {
	t.Setenv("INJECTOR_ENABLED", "false")
	t.Setenv("CONTEXT_API_URL", "http://ctx.test/enhance")
	t.Setenv("CONTEXT_API_TIMEOUT", "750")
	t.Setenv("CONTEXT_API_COOLDOWN", "2s")
	t.Setenv("CONTEXT_USER_ID", "user-42")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("INJECT_MODE", "simulated")

	s := DefaultsFromEnv(&env.EnvService{})

	assert.False(t, s.Enabled)
	assert.Equal(t, "http://ctx.test/enhance", s.API.Endpoint)
	assert.Equal(t, 750*time.Millisecond, s.API.Timeout)
	assert.Equal(t, 2*time.Second, s.API.Cooldown)
	assert.Equal(t, "user-42", s.API.UserID)
	assert.Equal(t, "sk-test", s.API.APIKey)
	assert.Equal(t, entity.InjectSimulated, s.InjectMode)
	assert.Equal(t, entity.DefaultGuardTimeout, s.GuardTimeout)
}

func TestDefaultsFromEnv_GeneratesUserID(t *testing.T) {
	t.Setenv("CONTEXT_USER_ID", "")

	a := DefaultsFromEnv(&env.EnvService{})
	b := DefaultsFromEnv(&env.EnvService{})

	assert.NotEmpty(t, a.API.UserID)
	assert.NotEqual(t, a.API.UserID, b.API.UserID)
}

func TestFileStore_APIKeyNotPersisted(t *testing.T) {
	s := entity.DefaultSettings()
	s.API.APIKey = "secret"

	dto := fromSettings(s)
	back := dto.toSettings(entity.DefaultSettings())
	assert.Empty(t, back.API.APIKey)
}
