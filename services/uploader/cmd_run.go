package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snowstudies/csas-stations/services/logging"
	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/store"
	"github.com/snowstudies/csas-stations/services/uploader/internal/config"
	"github.com/snowstudies/csas-stations/services/uploader/internal/datfile"
	"github.com/snowstudies/csas-stations/services/uploader/internal/metrics"
	"github.com/snowstudies/csas-stations/services/uploader/internal/notify"
	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
	"github.com/snowstudies/csas-stations/services/uploader/internal/schedule"
	"github.com/snowstudies/csas-stations/services/uploader/internal/uploadlog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Upload every station now and then on the configured schedule",
	Args:  cobra.NoArgs,
	RunE:  runScheduled,
}

var onceCmd = &cobra.Command{
	Use:   "once [STATION...]",
	Short: "Run a single upload pass",
	Long: `Run a single upload pass over the named stations, or over every
registered station when none are given. With --file, exactly one station
must be named and that file is uploaded instead of its configured source.`,
	RunE: runOnce,
}

var onceFile string

func init() {
	onceCmd.Flags().StringVar(&onceFile, "file", "", "upload this datalogger file instead of the station source")
	rootCmd.AddCommand(runCmd, onceCmd)
}

type service struct {
	cfg      config.Config
	log      *slog.Logger
	registry *stations.Registry
	store    store.Store
	runner   *schedule.Runner
	notifier *notify.Notifier
}

func newService(ctx context.Context) (*service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if registryPath != "" {
		cfg.StationRegistry = registryPath
	}
	log := logging.New(cfg.LogLevel, version, "csas-uploader")

	plan, err := schedule.ParsePlan(cfg.Schedule, cfg.Settle, cfg.Accuracy)
	if err != nil {
		return nil, err
	}

	registry, err := stations.LoadRegistry(cfg.StationRegistry)
	if err != nil {
		return nil, err
	}

	journal, err := uploadlog.New(cfg.UploadLogDir, log)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connection error: %w", err)
	}

	svc := &service{cfg: cfg, log: log, registry: registry, store: db}

	m := metrics.New()
	reporters := []reconcile.Reporter{m}
	observers := []schedule.PassObserver{m}
	if cfg.MetricsAddr != "" {
		m.Serve(ctx, cfg.MetricsAddr, log)
	}
	if cfg.MQTTBroker != "" {
		svc.notifier = notify.New(notify.Config{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
		}, log)
		if err := svc.notifier.Connect(ctx); err != nil {
			svc.Close()
			return nil, err
		}
		reporters = append(reporters, svc.notifier)
		observers = append(observers, svc.notifier)
	}

	uploader := reconcile.New(db, journal, log, reconcile.Options{
		InsertDespiteGap: cfg.InsertDespiteGap,
		RetryAttempts:    cfg.RetryAttempts,
		RetryDelay:       cfg.RetryDelay,
		DryRun:           cfg.DryRun,
	}, reporters...)

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	svc.runner = &schedule.Runner{
		Stations: registry.Stations(),
		Uploader: uploader,
		Fetch: func(ctx context.Context, location string) ([]byte, error) {
			return datfile.Fetch(ctx, client, location)
		},
		Plan:          plan,
		QuarantineDir: cfg.QuarantineDir,
		Observers:     observers,
		Journal:       journal,
		Log:           log,
	}

	log.Info("uploader ready",
		"driver", cfg.DBDriver,
		"stations", len(registry.Stations()),
		"plan", plan.String(),
		"dry_run", cfg.DryRun,
	)
	return svc, nil
}

func (s *service) Close() {
	if s.notifier != nil {
		s.notifier.Close()
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("close store", "err", err)
	}
}

func runScheduled(cmd *cobra.Command, _ []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.runner.Run(cmd.Context())
}

func runOnce(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	if len(args) > 0 {
		selected := make([]*stations.Station, 0, len(args))
		for _, code := range args {
			st, err := svc.registry.Station(code)
			if err != nil {
				return err
			}
			selected = append(selected, st)
		}
		svc.runner.Stations = selected
	}

	if onceFile != "" {
		if len(args) != 1 {
			return fmt.Errorf("--file needs exactly one station, got %d", len(args))
		}
		st := *svc.runner.Stations[0]
		st.Source = onceFile
		svc.runner.Stations = []*stations.Station{&st}
	}

	results, err := svc.runner.Pass(cmd.Context())
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		fmt.Fprintf(os.Stdout, "%-6s %-18s %d\n", res.Station, res.Outcome, res.Rows)
		if res.Outcome == reconcile.Failed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed: %s", failed, len(results), strings.Join(failedStations(results), ", "))
	}
	return nil
}

func failedStations(results []reconcile.Result) []string {
	var out []string
	for _, res := range results {
		if res.Outcome == reconcile.Failed {
			out = append(out, res.Station)
		}
	}
	return out
}
