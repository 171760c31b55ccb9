package interceptor

import (
	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

type eventKind int

const (
	submitTriggered eventKind = iota
	fetchResolved
	injectionDone
	elementsLost
	elementsReady
	guardExpired
	settingsChanged
	documentReloaded
)

var eventNames = map[eventKind]string{
	submitTriggered:  "submitTriggered",
	fetchResolved:    "fetchResolved",
	injectionDone:    "injectionDone",
	elementsLost:     "elementsLost",
	elementsReady:    "elementsReady",
	guardExpired:     "guardExpired",
	settingsChanged:  "settingsChanged",
	documentReloaded: "documentReloaded",
}

func (k eventKind) String() string {
	return eventNames[k]
}

type event struct {
	kind      eventKind
	attemptID int64
	trigger   entity.TriggerSource
	fetch     fetchOutcome
	err       error
	elements  output.ResolvedElements
	expired   entity.SubmissionAttempt
	settings  entity.Settings
}
