package config

import (
	"time"

	"github.com/google/uuid"

	"context-injector/internal/domain/entity"
)

// EnvSource is the subset of env.EnvService used to seed settings.
type EnvSource interface {
	GetWithDefault(key, defaultValue string) string
	GetBool(key string, defaultValue bool) bool
	GetInt(key string, defaultValue int) int
	GetDuration(key string, defaultValue time.Duration) time.Duration
}

// DefaultsFromEnv builds the settings used when the settings file is missing
// or leaves a field unset. Secrets only ever come from the environment.
func DefaultsFromEnv(env EnvSource) entity.Settings {
	s := entity.DefaultSettings()

	s.Enabled = env.GetBool("INJECTOR_ENABLED", s.Enabled)
	s.Debug = env.GetBool("DEBUG", s.Debug)

	s.API.Backend = entity.ContextBackend(env.GetWithDefault("CONTEXT_BACKEND", string(s.API.Backend)))
	s.API.Endpoint = env.GetWithDefault("CONTEXT_API_URL", s.API.Endpoint)
	s.API.Timeout = env.GetDuration("CONTEXT_API_TIMEOUT", s.API.Timeout)
	s.API.MaxRetries = env.GetInt("CONTEXT_API_MAX_RETRIES", s.API.MaxRetries)
	s.API.BackoffBase = env.GetDuration("CONTEXT_API_BACKOFF", s.API.BackoffBase)
	s.API.Cooldown = env.GetDuration("CONTEXT_API_COOLDOWN", s.API.Cooldown)
	s.API.Source = env.GetWithDefault("CONTEXT_SOURCE", s.API.Source)
	s.API.UserID = env.GetWithDefault("CONTEXT_USER_ID", "")
	if s.API.UserID == "" {
		s.API.UserID = uuid.NewString()
	}
	s.API.Model = env.GetWithDefault("OPENROUTER_MODEL", "openai/gpt-4o-mini")
	s.API.APIKey = env.GetWithDefault("OPENROUTER_API_KEY", "")

	s.GuardTimeout = env.GetDuration("GUARD_TIMEOUT", s.GuardTimeout)
	s.InjectMode = entity.InjectMode(env.GetWithDefault("INJECT_MODE", string(s.InjectMode)))

	return s.Normalize()
}
