package httpx

import (
	"context"
	"errors"

	"context-injector/internal/domain/entity"
)

// TransportError classifies a failed round trip as a timeout or a network error.
func TransportError(ctx context.Context, err error) *entity.FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entity.NewFetchError(entity.FetchTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return entity.NewFetchError(entity.FetchTimeout, err)
	}
	return entity.NewFetchError(entity.FetchNetwork, err)
}
