package entity

import "time"

type AttemptStatus string

const (
	AttemptPending      AttemptStatus = "pending"
	AttemptEnhancing    AttemptStatus = "enhancing"
	AttemptInjecting    AttemptStatus = "injecting"
	AttemptResubmitting AttemptStatus = "resubmitting"
	AttemptCompleted    AttemptStatus = "completed"
	AttemptAborted      AttemptStatus = "aborted"
)

func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAborted
}

type TriggerSource string

const (
	TriggerSubmit TriggerSource = "submit"
	TriggerClick  TriggerSource = "click"
	TriggerEnter  TriggerSource = "enter"
)

type AbortReason string

const (
	AbortGuardTimeout   AbortReason = "guard_timeout"
	AbortElementsLost   AbortReason = "elements_lost"
	AbortInjection      AbortReason = "injection_failure"
	AbortButtonDisabled AbortReason = "button_disabled"
	AbortResubmit       AbortReason = "resubmit_failure"
	AbortDisabled       AbortReason = "engine_disabled"
)

type SubmissionAttempt struct {
	ID           int64
	TraceID      string
	Trigger      TriggerSource
	OriginalText string
	EnhancedText string
	Enhanced     bool
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       AttemptStatus
	AbortReason  AbortReason
	FetchCalls   int
}

func (a SubmissionAttempt) Active() bool {
	return !a.Status.Terminal()
}

func (a SubmissionAttempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

type EngineState string

const (
	StateIdle         EngineState = "idle"
	StateIntercepted  EngineState = "intercepted"
	StateEnhancing    EngineState = "enhancing"
	StateInjected     EngineState = "injected"
	StateResubmitting EngineState = "resubmitting"
	StateAborted      EngineState = "aborted"
)
