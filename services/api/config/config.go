package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/snowstudies/csas-stations/services/logging"
)

// Config holds environment-driven settings for the REST API.
type Config struct {
	DBDriver        string
	DatabaseURL     string
	StationRegistry string
	Port            int
	BearerToken     string
	DefaultDays     int
	DefaultInterval string
	DashboardDir    string
	LogLevel        slog.Level
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		DBDriver:        "postgres",
		StationRegistry: "stations.yaml",
		Port:            8080,
		DefaultDays:     7,
		DefaultInterval: "1 Hour",
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.DBDriver = driver
	}
	if path := os.Getenv("STATION_REGISTRY"); path != "" {
		cfg.StationRegistry = path
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if daysStr := os.Getenv("API_DEFAULT_DAYS"); daysStr != "" {
		if days, err := strconv.Atoi(daysStr); err == nil && days > 0 {
			cfg.DefaultDays = days
		} else {
			return cfg, fmt.Errorf("invalid API_DEFAULT_DAYS: %s", daysStr)
		}
	}

	if interval := os.Getenv("API_DEFAULT_INTERVAL"); interval != "" {
		cfg.DefaultInterval = interval
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")
	cfg.DashboardDir = os.Getenv("DASHBOARD_DIR")

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
