package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://csas@localhost/csas")
	for _, k := range []string{"DB_DRIVER", "INSERT_DESPITE_GAP", "DB_RETRY_DELAY", "DB_RETRY_ATTEMPTS", "UPLOAD_SCHEDULE", "LOG_LEVEL", "DRY_RUN", "MQTT_PORT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.True(t, cfg.InsertDespiteGap)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Zero(t, cfg.RetryAttempts)
	assert.Equal(t, "hour; 12 min", cfg.Schedule)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.DryRun)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "csas:pw@tcp(db:3306)/csas")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("INSERT_DESPITE_GAP", "false")
	t.Setenv("DB_RETRY_DELAY", "250ms")
	t.Setenv("DB_RETRY_ATTEMPTS", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DRY_RUN", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.False(t, cfg.InsertDespiteGap)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.DryRun)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing url":    {"DATABASE_URL": ""},
		"bad delay":      {"DATABASE_URL": "x", "DB_RETRY_DELAY": "5"},
		"negative tries": {"DATABASE_URL": "x", "DB_RETRY_ATTEMPTS": "-1"},
		"bad bool":       {"DATABASE_URL": "x", "INSERT_DESPITE_GAP": "sometimes"},
		"bad level":      {"DATABASE_URL": "x", "LOG_LEVEL": "loud"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
