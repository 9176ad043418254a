package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/snowstudies/csas-stations/services/logging"
	"github.com/snowstudies/csas-stations/services/store"
)

const (
	defaultDriver       = "postgres"
	defaultRegistry     = "stations.yaml"
	defaultUploadLogDir = "upload_logs"
	defaultSchedule     = "hour; 12 min"
	defaultSettle       = 5 * time.Second
	defaultAccuracy     = time.Second
	defaultHTTPTimeout  = 30 * time.Second
	defaultMQTTPort     = 1883
	defaultMQTTClientID = "csas-uploader"
)

// Config holds runtime configuration for the uploader service.
type Config struct {
	DBDriver         string
	DatabaseURL      string
	StationRegistry  string
	UploadLogDir     string
	QuarantineDir    string
	InsertDespiteGap bool
	RetryDelay       time.Duration
	RetryAttempts    int
	Schedule         string
	Settle           time.Duration
	Accuracy         time.Duration
	HTTPTimeout      time.Duration
	MetricsAddr      string
	MQTTBroker       string
	MQTTPort         int
	MQTTClientID     string
	LogLevel         slog.Level
	DryRun           bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.DBDriver = envOr("DB_DRIVER", defaultDriver)
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.StationRegistry = envOr("STATION_REGISTRY", defaultRegistry)
	cfg.UploadLogDir = envOr("UPLOAD_LOG_DIR", defaultUploadLogDir)
	cfg.QuarantineDir = strings.TrimSpace(os.Getenv("QUARANTINE_DIR"))

	var err error
	if cfg.InsertDespiteGap, err = envBool("INSERT_DESPITE_GAP", true); err != nil {
		return cfg, err
	}
	if cfg.RetryDelay, err = envDuration("DB_RETRY_DELAY", store.DefaultRetryDelay); err != nil {
		return cfg, err
	}
	if cfg.RetryAttempts, err = envInt("DB_RETRY_ATTEMPTS", 0); err != nil {
		return cfg, err
	}
	if cfg.RetryAttempts < 0 {
		return cfg, fmt.Errorf("invalid DB_RETRY_ATTEMPTS: %d", cfg.RetryAttempts)
	}

	cfg.Schedule = envOr("UPLOAD_SCHEDULE", defaultSchedule)
	if cfg.Settle, err = envDuration("UPLOAD_SETTLE", defaultSettle); err != nil {
		return cfg, err
	}
	if cfg.Accuracy, err = envDuration("SCHEDULE_ACCURACY", defaultAccuracy); err != nil {
		return cfg, err
	}
	if cfg.HTTPTimeout, err = envDuration("HTTP_TIMEOUT", defaultHTTPTimeout); err != nil {
		return cfg, err
	}

	cfg.MetricsAddr = strings.TrimSpace(os.Getenv("METRICS_ADDR"))
	cfg.MQTTBroker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if cfg.MQTTPort, err = envInt("MQTT_PORT", defaultMQTTPort); err != nil {
		return cfg, err
	}
	cfg.MQTTClientID = envOr("MQTT_CLIENT_ID", defaultMQTTClientID)

	if cfg.LogLevel, err = logging.ParseLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return cfg, err
	}

	if cfg.DryRun, err = envBool("DRY_RUN", false); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
