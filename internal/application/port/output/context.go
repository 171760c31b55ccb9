package output

import (
	"context"
	"time"
)

type ContextRequest struct {
	Query   string
	UserID  string
	Source  string
	TraceID string
}

type ContextResult struct {
	Text        string
	StatusCode  int
	RespondedAt time.Time
}

// ContextPort performs exactly one enhancement call. Failures are returned as
// *entity.FetchError.
type ContextPort interface {
	Name() string
	Enhance(ctx context.Context, req ContextRequest) (*ContextResult, error)
}
