package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/benbjohnson/clock"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.SettingsStore = (*FileStore)(nil)

const DefaultPollInterval = time.Second

// FileStore reads settings from a JSON document and polls it for changes.
type FileStore struct {
	path     string
	defaults entity.Settings
	clock    clock.Clock
	interval time.Duration
	logger   output.LoggerPort
}

func NewFileStore(path string, defaults entity.Settings, clk clock.Clock, logger output.LoggerPort) *FileStore {
	return &FileStore{path: path, defaults: defaults, clock: clk, interval: DefaultPollInterval, logger: logger}
}

func (s *FileStore) WithPollInterval(d time.Duration) *FileStore {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Load returns defaults when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (entity.Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.defaults.Normalize(), nil
	}
	if err != nil {
		return entity.Settings{}, fmt.Errorf("read settings: %w", err)
	}

	settings, err := DecodeSettings(data, s.defaults)
	if err != nil {
		return entity.Settings{}, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return settings, nil
}

func (s *FileStore) Save(ctx context.Context, settings entity.Settings) error {
	data, err := json.MarshalIndent(fromSettings(settings), "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Watch polls the file's modification time and emits the parsed settings
// whenever they differ from the last emitted value. A file that fails to parse
// is logged and skipped.
func (s *FileStore) Watch(ctx context.Context) <-chan entity.Settings {
	out := make(chan entity.Settings, 1)

	lastMod := s.modTime()
	last, _ := s.Load(ctx)
	ticker := s.clock.Ticker(s.interval)

	go func() {
		defer close(out)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			mod := s.modTime()
			if mod.Equal(lastMod) {
				continue
			}
			lastMod = mod

			next, err := s.Load(ctx)
			if err != nil {
				s.logger.Warn("ignoring unreadable settings file", "path", s.path, "error", err)
				continue
			}
			if reflect.DeepEqual(next, last) {
				continue
			}
			last = next
			s.logger.Info("settings changed", "path", s.path)

			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (s *FileStore) modTime() time.Time {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
