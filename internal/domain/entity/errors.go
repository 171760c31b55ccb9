package entity

import (
	"errors"
	"fmt"
)

var (
	ErrSelectorMiss      = errors.New("no selector strategy matched")
	ErrGuardTimeout      = errors.New("submission guard safety timeout")
	ErrInjectionFailure  = errors.New("injection failed")
	ErrElementGone       = fmt.Errorf("%w: element is no longer attached", ErrInjectionFailure)
	ErrInjectionMismatch = fmt.Errorf("%w: element value differs from injected text", ErrInjectionFailure)
)

type FetchErrorKind string

const (
	FetchCooldown  FetchErrorKind = "cooldown"
	FetchTimeout   FetchErrorKind = "timeout"
	FetchNetwork   FetchErrorKind = "network"
	FetchHTTP      FetchErrorKind = "http"
	FetchMalformed FetchErrorKind = "malformed"
)

type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Message    string
	Err        error
}

var (
	ErrFetchCooldown  = &FetchError{Kind: FetchCooldown}
	ErrFetchTimeout   = &FetchError{Kind: FetchTimeout}
	ErrFetchNetwork   = &FetchError{Kind: FetchNetwork}
	ErrFetchHTTP      = &FetchError{Kind: FetchHTTP}
	ErrFetchMalformed = &FetchError{Kind: FetchMalformed}
)

func (e *FetchError) Error() string {
	msg := "context fetch " + string(e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches on kind only, so errors.Is(err, ErrFetchTimeout) works for any timeout.
func (e *FetchError) Is(target error) bool {
	var t *FetchError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchNetwork
}
