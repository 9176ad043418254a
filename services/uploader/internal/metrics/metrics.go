package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

// Metrics exposes uploader counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal    *prometheus.CounterVec
	rowsWritten     *prometheus.CounterVec
	gapsTotal       *prometheus.CounterVec
	dbRetriesTotal  *prometheus.CounterVec
	passDuration    prometheus.Histogram
	lastPassSeconds prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		uploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csas_uploads_total",
				Help: "Upload attempts by station and outcome",
			},
			[]string{"station", "outcome"},
		),
		rowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csas_rows_written_total",
				Help: "Rows appended to station tables",
			},
			[]string{"station"},
		),
		gapsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csas_interval_gaps_total",
				Help: "Breaks in the expected sampling interval",
			},
			[]string{"station", "arrayid"},
		),
		dbRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csas_db_retries_total",
				Help: "Database retries after connection failures",
			},
			[]string{"station"},
		),
		passDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "csas_upload_pass_duration_seconds",
				Help:    "Duration of a full upload pass over all stations",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
			},
		),
		lastPassSeconds: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "csas_last_pass_timestamp_seconds",
				Help: "Unix time the last upload pass finished",
			},
		),
	}
}

func (m *Metrics) Outcome(res reconcile.Result) {
	m.uploadsTotal.WithLabelValues(res.Station, res.Outcome.String()).Inc()
	if !res.DryRun && (res.Outcome == reconcile.Uploaded || res.Outcome == reconcile.UploadedWithGap) {
		m.rowsWritten.WithLabelValues(res.Station).Add(float64(res.Rows))
	}
	for _, g := range res.Gaps {
		m.gapsTotal.WithLabelValues(res.Station, strconv.Itoa(g.ArrayID)).Inc()
	}
}

func (m *Metrics) Retry(station string, _ int, _ error) {
	m.dbRetriesTotal.WithLabelValues(station).Inc()
}

func (m *Metrics) PassCompleted(_ string, started time.Time, _ []reconcile.Result) {
	m.passDuration.Observe(time.Since(started).Seconds())
	m.lastPassSeconds.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "err", err)
		}
	}()
}
