package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/snowstudies/csas-stations/services/dashboard/internal/publish"
	"github.com/snowstudies/csas-stations/services/logging"
)

const (
	defaultDriver   = "postgres"
	defaultRegistry = "stations.yaml"
	defaultInterval = "1 Hour"
	defaultSSHPort  = 22
)

// Config holds runtime configuration for the dashboard renderer.
type Config struct {
	DBDriver        string
	DatabaseURL     string
	StationRegistry string
	Interval        string
	Title           string
	SSH             publish.SSHConfig
	AWSRegion       string
	AWSProfile      string
	LogLevel        slog.Level
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		DBDriver:        envOr("DB_DRIVER", defaultDriver),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StationRegistry: envOr("STATION_REGISTRY", defaultRegistry),
		Interval:        envOr("DASHBOARD_INTERVAL", defaultInterval),
		Title:           strings.TrimSpace(os.Getenv("DASHBOARD_TITLE")),
		AWSRegion:       strings.TrimSpace(os.Getenv("AWS_REGION")),
		AWSProfile:      strings.TrimSpace(os.Getenv("AWS_PROFILE")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.SSH = publish.SSHConfig{
		Host:           strings.TrimSpace(os.Getenv("PUBLISH_SSH_HOST")),
		Port:           defaultSSHPort,
		User:           strings.TrimSpace(os.Getenv("PUBLISH_SSH_USER")),
		Password:       os.Getenv("PUBLISH_SSH_PASSWORD"),
		KeyFile:        strings.TrimSpace(os.Getenv("PUBLISH_SSH_KEY")),
		KnownHostsFile: strings.TrimSpace(os.Getenv("PUBLISH_SSH_KNOWN_HOSTS")),
	}
	if v := strings.TrimSpace(os.Getenv("PUBLISH_SSH_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid PUBLISH_SSH_PORT: %q", v)
		}
		cfg.SSH.Port = port
	}

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
