package input

import (
	"context"

	"context-injector/internal/domain/entity"
)

type Interceptor interface {
	Run(ctx context.Context) error
	Apply(settings entity.Settings)
	State() entity.EngineState
}
