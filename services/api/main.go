package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/snowstudies/csas-stations/services/api/config"
	httpserver "github.com/snowstudies/csas-stations/services/api/http"
	"github.com/snowstudies/csas-stations/services/logging"
	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/store"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(cfg.LogLevel, version, "csas-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := stations.LoadRegistry(cfg.StationRegistry)
	if err != nil {
		log.Fatalf("station registry error: %v", err)
	}

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection error: %v", err)
	}
	defer db.Close()

	srv := httpserver.New(cfg, db, registry, logger)
	logger.Info("REST API listening", "addr", cfg.ListenAddr(), "stations", len(registry.Stations()))

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "err", err)
	}
}
