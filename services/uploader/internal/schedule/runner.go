package schedule

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/uploader/internal/datfile"
	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

// Uploader is the orchestrator a pass invokes once per station.
type Uploader interface {
	Upload(ctx context.Context, raw *datfile.RawFile) reconcile.Result
}

// PassObserver is told about every completed pass.
type PassObserver interface {
	PassCompleted(id string, started time.Time, results []reconcile.Result)
}

// FetchFunc returns the raw bytes of a datalogger source.
type FetchFunc func(ctx context.Context, location string) ([]byte, error)

// Runner drives upload passes: one immediately, then one after every Plan wait.
type Runner struct {
	Stations      []*stations.Station
	Uploader      Uploader
	Fetch         FetchFunc
	Plan          Plan
	Clock         Clock
	QuarantineDir string
	Observers     []PassObserver
	Journal       reconcile.Journal
	Log           *slog.Logger
}

const stampLayout = "2006-01-02 15:04:05"

// Run blocks until ctx ends or a datalogger file fails to parse with no
// quarantine directory configured.
func (r *Runner) Run(ctx context.Context) error {
	clock := r.clock()
	last := clock.Now()
	if _, err := r.Pass(ctx); err != nil {
		return err
	}
	for {
		at, err := r.Plan.Next(ctx, clock, last)
		if err != nil {
			return err
		}
		last = at
		r.log().Debug("schedule aligned", "at", at, "plan", r.Plan.String())
		if _, err := r.Pass(ctx); err != nil {
			return err
		}
	}
}

// Pass uploads every station with a configured source, in order.
func (r *Runner) Pass(ctx context.Context) ([]reconcile.Result, error) {
	id := uuid.NewString()
	started := r.clock().Now()
	log := r.log().With("pass", id)
	log.Info("upload pass started", "stations", len(r.Stations))

	results := make([]reconcile.Result, 0, len(r.Stations))
	for _, st := range r.Stations {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if st.Source == "" {
			continue
		}

		body, err := r.Fetch(ctx, st.Source)
		if err != nil {
			log.Error("fetch datalogger file", "station", st.Code, "source", st.Source, "err", err)
			if r.Journal != nil {
				msg := fmt.Sprintf("Could not read datalogger file %s at %s", st.Source, started.Format(stampLayout))
				if jerr := r.Journal.Record(slog.LevelError, st.Code, msg); jerr != nil {
					log.Error("write upload log", "station", st.Code, "err", jerr)
				}
			}
			continue
		}

		raw, err := datfile.Parse(st, bytes.NewReader(body))
		if err != nil {
			if r.QuarantineDir == "" {
				return results, fmt.Errorf("station %s: parse %s: %w", st.Code, st.Source, err)
			}
			path, qerr := r.quarantine(st, body, started)
			if qerr != nil {
				return results, fmt.Errorf("station %s: quarantine after %v: %w", st.Code, err, qerr)
			}
			log.Error("datalogger file quarantined", "station", st.Code, "path", path, "err", err)
			continue
		}

		res := r.Uploader.Upload(ctx, datfile.AddAlbedo(raw))
		log.Debug("station done", "station", st.Code, "outcome", res.Outcome.String(), "rows", res.Rows)
		results = append(results, res)
	}

	for _, o := range r.Observers {
		o.PassCompleted(id, started, results)
	}
	log.Info("upload pass finished", "uploads", len(results), "took", r.clock().Now().Sub(started).Round(time.Millisecond))
	return results, nil
}

func (r *Runner) quarantine(st *stations.Station, body []byte, at time.Time) (string, error) {
	if err := os.MkdirAll(r.QuarantineDir, 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(st.Source)
	if ext == "" || strings.Contains(ext, "/") {
		ext = ".dat"
	}
	name := fmt.Sprintf("%s_%s%s", strings.ToUpper(st.Code), at.Format("20060102T150405"), ext)
	path := filepath.Join(r.QuarantineDir, name)
	return path, os.WriteFile(path, body, 0o644)
}

func (r *Runner) clock() Clock {
	if r.Clock == nil {
		return SystemClock{}
	}
	return r.Clock
}

func (r *Runner) log() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}
