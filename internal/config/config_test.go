package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meatycapture/internal/logger"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Empty(t, cfg.FS.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Shell.Timeout)
	assert.Equal(t, logger.InfoLevel, cfg.LogLevel())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MEATYCAPTURE_LOG_LEVEL", "debug")
	t.Setenv("MEATYCAPTURE_LOG_JSON", "true")
	t.Setenv("MEATYCAPTURE_FS_DATA_DIR", "/srv/notes")
	t.Setenv("MEATYCAPTURE_SHELL_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, logger.DebugLevel, cfg.LogLevel())
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "/srv/notes", cfg.FS.DataDir)
	assert.Equal(t, 5*time.Second, cfg.Shell.Timeout)
}

func TestLoad_SettingsFile(t *testing.T) {
	dir := t.TempDir()
	doc := "log:\n  level: warn\nfs:\n  data_dir: $DOCUMENT/captures\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(doc), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, logger.WarnLevel, cfg.LogLevel())
	assert.Equal(t, "$DOCUMENT/captures", cfg.FS.DataDir)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown level", map[string]string{"MEATYCAPTURE_LOG_LEVEL": "loud"}},
		{"relative data dir", map[string]string{"MEATYCAPTURE_FS_DATA_DIR": "notes"}},
		{"negative timeout", map[string]string{"MEATYCAPTURE_SHELL_TIMEOUT": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			assert.Error(t, err)
		})
	}
}
