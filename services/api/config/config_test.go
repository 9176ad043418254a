package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://csas@localhost/csas")
	t.Setenv("PORT", "")
	t.Setenv("API_PORT", "9090")
	t.Setenv("API_DEFAULT_DAYS", "")
	t.Setenv("API_DEFAULT_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr())
	assert.Equal(t, 7, cfg.DefaultDays)
	assert.Equal(t, "1 Hour", cfg.DefaultInterval)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing url": {"DATABASE_URL": ""},
		"bad port":    {"DATABASE_URL": "x", "PORT": "http"},
		"bad days":    {"DATABASE_URL": "x", "API_DEFAULT_DAYS": "0"},
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
