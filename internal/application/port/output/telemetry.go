package output

import (
	"context"

	"context-injector/internal/domain/entity"
)

type TelemetrySink interface {
	Append(ctx context.Context, rec entity.APIRequestRecord) error
}

type AttemptReporter interface {
	StateChanged(attemptID int64, from, to entity.EngineState)
	AttemptFinished(attempt entity.SubmissionAttempt)
}
