// Package config persists engine settings and reports changes to them.
package config

import (
	"encoding/json"
	"time"

	"context-injector/internal/domain/entity"
)

// settingsDTO is the stored shape. Durations are plain milliseconds so the
// same document can be edited by hand or written by the extension popup.
type settingsDTO struct {
	Enabled          *bool                     `json:"enabled,omitempty"`
	Debug            *bool                     `json:"debug,omitempty"`
	Strategies       []entity.SelectorStrategy `json:"strategies,omitempty"`
	Backend          string                    `json:"backend,omitempty"`
	Endpoint         string                    `json:"endpoint,omitempty"`
	TimeoutMs        int                       `json:"timeoutMs,omitempty"`
	MaxRetries       int                       `json:"maxRetries,omitempty"`
	BackoffBaseMs    int                       `json:"backoffBaseMs,omitempty"`
	BackoffFactor    float64                   `json:"backoffFactor,omitempty"`
	CooldownMs       *int                      `json:"cooldownMs,omitempty"`
	UserID           string                    `json:"userId,omitempty"`
	Source           string                    `json:"source,omitempty"`
	Model            string                    `json:"model,omitempty"`
	GuardTimeoutMs   int                       `json:"guardTimeoutMs,omitempty"`
	InjectMode       string                    `json:"injectMode,omitempty"`
	TypingDelayMinMs int                       `json:"typingDelayMinMs,omitempty"`
	TypingDelayMaxMs int                       `json:"typingDelayMaxMs,omitempty"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func toMs(d time.Duration) int {
	return int(d / time.Millisecond)
}

// toSettings overlays the stored values on defaults. The API key never lives
// in this document.
func (d settingsDTO) toSettings(defaults entity.Settings) entity.Settings {
	s := defaults
	if d.Enabled != nil {
		s.Enabled = *d.Enabled
	}
	if d.Debug != nil {
		s.Debug = *d.Debug
	}
	if len(d.Strategies) > 0 {
		s.Strategies = d.Strategies
	}
	if d.Backend != "" {
		s.API.Backend = entity.ContextBackend(d.Backend)
	}
	if d.Endpoint != "" {
		s.API.Endpoint = d.Endpoint
	}
	if d.TimeoutMs > 0 {
		s.API.Timeout = ms(d.TimeoutMs)
	}
	if d.MaxRetries != 0 {
		s.API.MaxRetries = d.MaxRetries
	}
	if d.BackoffBaseMs > 0 {
		s.API.BackoffBase = ms(d.BackoffBaseMs)
	}
	if d.BackoffFactor > 0 {
		s.API.BackoffFactor = d.BackoffFactor
	}
	if d.CooldownMs != nil {
		s.API.Cooldown = ms(*d.CooldownMs)
	}
	if d.UserID != "" {
		s.API.UserID = d.UserID
	}
	if d.Source != "" {
		s.API.Source = d.Source
	}
	if d.Model != "" {
		s.API.Model = d.Model
	}
	if d.GuardTimeoutMs > 0 {
		s.GuardTimeout = ms(d.GuardTimeoutMs)
	}
	if d.InjectMode != "" {
		s.InjectMode = entity.InjectMode(d.InjectMode)
	}
	if d.TypingDelayMinMs > 0 {
		s.TypingDelayMin = ms(d.TypingDelayMinMs)
	}
	if d.TypingDelayMaxMs > 0 {
		s.TypingDelayMax = ms(d.TypingDelayMaxMs)
	}
	return s.Normalize()
}

func fromSettings(s entity.Settings) settingsDTO {
	enabled, debug := s.Enabled, s.Debug
	cooldown := toMs(s.API.Cooldown)
	return settingsDTO{
		Enabled:          &enabled,
		Debug:            &debug,
		Strategies:       s.Strategies,
		Backend:          string(s.API.Backend),
		Endpoint:         s.API.Endpoint,
		TimeoutMs:        toMs(s.API.Timeout),
		MaxRetries:       s.API.MaxRetries,
		BackoffBaseMs:    toMs(s.API.BackoffBase),
		BackoffFactor:    s.API.BackoffFactor,
		CooldownMs:       &cooldown,
		UserID:           s.API.UserID,
		Source:           s.API.Source,
		Model:            s.API.Model,
		GuardTimeoutMs:   toMs(s.GuardTimeout),
		InjectMode:       string(s.InjectMode),
		TypingDelayMinMs: toMs(s.TypingDelayMin),
		TypingDelayMaxMs: toMs(s.TypingDelayMax),
	}
}

// DecodeSettings parses a stored settings document over defaults.
func DecodeSettings(data []byte, defaults entity.Settings) (entity.Settings, error) {
	var dto settingsDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return entity.Settings{}, err
	}
	return dto.toSettings(defaults), nil
}

func EncodeSettings(s entity.Settings) ([]byte, error) {
	return json.Marshal(fromSettings(s))
}
