//go:build !(js && wasm)

package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/domain/entity"
	"context-injector/internal/infrastructure/env"
)

func TestNewContainer_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONTEXT_API_URL", "http://ctx.test/enhance")

	cfg := Config{
		SessionName:   "test",
		SettingsPath:  filepath.Join(dir, "settings.json"),
		TelemetryPath: filepath.Join(dir, "log", "telemetry.jsonl"),
	}
	c, err := NewContainer(context.Background(), &env.EnvService{}, cfg)
	require.NoError(t, err)

	assert.Equal(t, "http://ctx.test/enhance", c.Settings.API.Endpoint)
	assert.Nil(t, c.Console)

	require.NoError(t, c.Sink.Append(context.Background(), entity.APIRequestRecord{AttemptID: 1, Status: entity.RequestSuccess}))
	assert.Len(t, c.Records.Records(), 1)

	require.NoError(t, c.Close())

	data, err := os.ReadFile(cfg.TelemetryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"attemptId":1`)
}

func TestNewContainer_BadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := NewContainer(context.Background(), &env.EnvService{}, Config{SessionName: "test", SettingsPath: path})
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SETTINGS_PATH", "/etc/injector.json")
	t.Setenv("CONSOLE_REPORTER", "false")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SNAPSHOT_DIR", "")

	cfg := ConfigFromEnv(&env.EnvService{})
	assert.Equal(t, "/etc/injector.json", cfg.SettingsPath)
	assert.False(t, cfg.Console)
	assert.Equal(t, "interceptor", cfg.SessionName)
	assert.Equal(t, "log/snapshots", cfg.SnapshotDir)
}
