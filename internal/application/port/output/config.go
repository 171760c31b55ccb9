package output

import (
	"context"

	"context-injector/internal/domain/entity"
)

type ConfigPort interface {
	Get(key string) string
	MustGet(key string) string
	GetWithDefault(key string, defaultValue string) string
}

// SettingsStore is the persisted engine configuration. Watch emits the full
// settings every time they change until ctx is done.
type SettingsStore interface {
	Load(ctx context.Context) (entity.Settings, error)
	Watch(ctx context.Context) <-chan entity.Settings
}
