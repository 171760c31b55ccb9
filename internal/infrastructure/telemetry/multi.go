package telemetry

import (
	"context"
	"errors"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.TelemetrySink = MultiSink(nil)

// MultiSink appends to every sink and joins their errors.
type MultiSink []output.TelemetrySink

func (m MultiSink) Append(ctx context.Context, rec entity.APIRequestRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
