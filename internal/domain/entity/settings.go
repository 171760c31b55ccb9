package entity

import (
	"fmt"
	"time"
)

type InjectMode string

const (
	InjectInstant   InjectMode = "instant"
	InjectSimulated InjectMode = "simulated"
)

type ContextBackend string

const (
	BackendContextAPI ContextBackend = "contextapi"
	BackendOpenRouter ContextBackend = "openrouter"
)

type APISettings struct {
	Backend       ContextBackend
	Endpoint      string
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64
	Cooldown      time.Duration
	UserID        string
	Source        string
	Model         string
	APIKey        string
}

// Settings is the persisted engine configuration. It is replaced as a whole
// whenever the store reports a change.
type Settings struct {
	Enabled        bool
	Debug          bool
	Strategies     []SelectorStrategy
	API            APISettings
	GuardTimeout   time.Duration
	InjectMode     InjectMode
	TypingDelayMin time.Duration
	TypingDelayMax time.Duration
}

const (
	DefaultGuardTimeout   = 5 * time.Second
	DefaultFetchTimeout   = 3 * time.Second
	DefaultMaxRetries     = 2
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffFactor  = 2.0
	DefaultCooldown       = 250 * time.Millisecond
	DefaultSource         = "chat-extension"
	DefaultTypingDelayMin = 15 * time.Millisecond
	DefaultTypingDelayMax = 45 * time.Millisecond
)

func DefaultSettings() Settings {
	return Settings{
		Enabled:    true,
		Strategies: DefaultStrategies(),
		API: APISettings{
			Backend:       BackendContextAPI,
			Endpoint:      "http://localhost:8000/api/context/enhance",
			Timeout:       DefaultFetchTimeout,
			MaxRetries:    DefaultMaxRetries,
			BackoffBase:   DefaultBackoffBase,
			BackoffFactor: DefaultBackoffFactor,
			Cooldown:      DefaultCooldown,
			Source:        DefaultSource,
		},
		GuardTimeout:   DefaultGuardTimeout,
		InjectMode:     InjectInstant,
		TypingDelayMin: DefaultTypingDelayMin,
		TypingDelayMax: DefaultTypingDelayMax,
	}
}

// Normalize fills zero values with defaults and drops incomplete strategies.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()

	strategies := make([]SelectorStrategy, 0, len(s.Strategies))
	for _, st := range s.Strategies {
		if st.Valid() {
			strategies = append(strategies, st)
		}
	}
	s.Strategies = strategies

	if s.API.Backend == "" {
		s.API.Backend = d.API.Backend
	}
	if s.API.Timeout <= 0 {
		s.API.Timeout = d.API.Timeout
	}
	if s.API.MaxRetries == 0 {
		s.API.MaxRetries = d.API.MaxRetries
	}
	if s.API.MaxRetries < 0 {
		s.API.MaxRetries = 1
	}
	if s.API.BackoffBase <= 0 {
		s.API.BackoffBase = d.API.BackoffBase
	}
	if s.API.BackoffFactor < 1 {
		s.API.BackoffFactor = d.API.BackoffFactor
	}
	if s.API.Cooldown < 0 {
		s.API.Cooldown = 0
	}
	if s.API.Source == "" {
		s.API.Source = d.API.Source
	}
	if s.GuardTimeout <= 0 {
		s.GuardTimeout = d.GuardTimeout
	}
	if s.InjectMode != InjectSimulated {
		s.InjectMode = InjectInstant
	}
	if s.TypingDelayMin <= 0 {
		s.TypingDelayMin = d.TypingDelayMin
	}
	if s.TypingDelayMax < s.TypingDelayMin {
		s.TypingDelayMax = s.TypingDelayMin
	}
	return s
}

// Warnings lists timing combinations that weaken the guard as the outer bound.
func (s Settings) Warnings() []string {
	var out []string
	if s.GuardTimeout <= s.API.Timeout {
		out = append(out, fmt.Sprintf("guard timeout %s is not longer than fetch timeout %s", s.GuardTimeout, s.API.Timeout))
	}
	if budget := s.API.Timeout * time.Duration(s.API.MaxRetries); s.API.MaxRetries > 1 && s.GuardTimeout >= budget {
		out = append(out, fmt.Sprintf("guard timeout %s is not shorter than fetch timeout x retries %s, so the guard is not the outer bound", s.GuardTimeout, budget))
	}
	if s.API.MaxRetries > 1 && s.API.Cooldown > 0 && s.API.Cooldown >= s.API.BackoffBase {
		out = append(out, fmt.Sprintf("cooldown %s is not shorter than backoff base %s, so retries hit the cooldown", s.API.Cooldown, s.API.BackoffBase))
	}
	if len(s.Strategies) == 0 {
		out = append(out, "no complete selector strategy configured")
	}
	return out
}
