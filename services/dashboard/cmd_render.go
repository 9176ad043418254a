package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowstudies/csas-stations/services/dashboard/internal/config"
	"github.com/snowstudies/csas-stations/services/dashboard/internal/publish"
	"github.com/snowstudies/csas-stations/services/dashboard/internal/render"
	layout "github.com/snowstudies/csas-stations/services/dashboard/internal/template"
	"github.com/snowstudies/csas-stations/services/logging"
	"github.com/snowstudies/csas-stations/services/series"
	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/store"
)

var renderCmd = &cobra.Command{
	Use:   "render OUTPUT TEMPLATE DAYS DAYS_SHOWING",
	Short: "Render the dashboard to OUTPUT",
	Long: `Render the dashboard described by TEMPLATE to OUTPUT. DAYS of data are
embedded in the page and the last DAYS_SHOWING of them are in view when it
loads. An existing OUTPUT is replaced.`,
	Args: cobra.ExactArgs(4),
	RunE: runRender,
}

var renderFlags struct {
	sftpTo   string
	s3To     string
	interval string
	registry string
}

func init() {
	renderCmd.Flags().StringVar(&renderFlags.sftpTo, "sftp-to", "", "copy the page to this path on the PUBLISH_SSH_HOST web host")
	renderCmd.Flags().StringVar(&renderFlags.s3To, "s3-to", "", "upload the page to s3://bucket/key")
	renderCmd.Flags().StringVar(&renderFlags.interval, "interval", "", "data array label to plot (defaults to DASHBOARD_INTERVAL)")
	renderCmd.Flags().StringVar(&renderFlags.registry, "registry", "", "station registry YAML (defaults to STATION_REGISTRY)")
	rootCmd.AddCommand(renderCmd)
}

type renderArgs struct {
	output      string
	template    string
	days        int
	daysShowing int
}

// parseRenderArgs validates the positional arguments and removes an existing
// output file.
func parseRenderArgs(args []string) (renderArgs, error) {
	ra := renderArgs{output: args[0], template: args[1]}

	var err error
	if ra.days, err = strconv.Atoi(args[2]); err != nil {
		return ra, fmt.Errorf("invalid DAYS %q: %w", args[2], err)
	}
	if ra.daysShowing, err = strconv.Atoi(args[3]); err != nil {
		return ra, fmt.Errorf("invalid DAYS_SHOWING %q: %w", args[3], err)
	}

	if _, err := os.Stat(ra.template); err != nil {
		return ra, fmt.Errorf("could not find template %s: %w", ra.template, err)
	}
	if info, err := os.Stat(filepath.Dir(ra.output)); err != nil || !info.IsDir() {
		return ra, fmt.Errorf("invalid path for %s", ra.output)
	}
	if ra.days < ra.daysShowing {
		return ra, fmt.Errorf("DAYS (%d) is less than DAYS_SHOWING (%d), were they switched?", ra.days, ra.daysShowing)
	}
	if ra.days < 1 {
		return ra, errors.New("DAYS must be >= 1")
	}
	if ra.daysShowing < 1 {
		return ra, errors.New("DAYS_SHOWING must be >= 1")
	}

	if err := os.Remove(ra.output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ra, fmt.Errorf("remove old %s: %w", ra.output, err)
	}
	return ra, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	ra, err := parseRenderArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if renderFlags.registry != "" {
		cfg.StationRegistry = renderFlags.registry
	}
	if renderFlags.interval != "" {
		cfg.Interval = renderFlags.interval
	}
	log := logging.New(cfg.LogLevel, version, "csas-dashboard")
	ctx := cmd.Context()

	tpl, err := layout.Load(ra.template)
	if err != nil {
		return err
	}
	registry, err := stations.LoadRegistry(cfg.StationRegistry)
	if err != nil {
		return err
	}

	var pubs []publish.Publisher
	if renderFlags.sftpTo != "" {
		p, err := publish.NewSSH(cfg.SSH, renderFlags.sftpTo, log)
		if err != nil {
			return err
		}
		pubs = append(pubs, p)
	}
	if renderFlags.s3To != "" {
		p, err := publish.NewS3(ctx, renderFlags.s3To, cfg.AWSRegion, cfg.AWSProfile)
		if err != nil {
			return err
		}
		pubs = append(pubs, p)
	}

	renderer, err := render.New()
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connection error: %w", err)
	}
	defer db.Close()

	// Stored timestamps are logger wall-clock time.
	now := time.Now()
	end := stations.Naive(now)
	start := end.AddDate(0, 0, -ra.days)

	tbl, err := series.NewFetcher(db, registry, log).Fetch(ctx, tpl.Lines(), start, end, cfg.Interval)
	if err != nil {
		return err
	}
	log.Info("dashboard data fetched", "columns", len(tbl.Columns), "timestamps", len(tbl.Times), "interval", cfg.Interval)

	f, err := os.Create(ra.output)
	if err != nil {
		return err
	}
	err = renderer.Render(f, tpl, tbl, render.Options{
		Title:       cfg.Title,
		End:         end,
		Days:        ra.days,
		DaysShowing: ra.daysShowing,
		Generated:   now,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", ra.output, err)
	}
	log.Info("dashboard written", "file", ra.output, "pages", len(tpl.Pages))

	return publish.All(ctx, ra.output, log, pubs...)
}
