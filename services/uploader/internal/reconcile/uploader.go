package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/store"
	"github.com/snowstudies/csas-stations/services/uploader/internal/datfile"
)

// Outcome is the terminal state of one Upload call.
type Outcome int

const (
	NoNewRows Outcome = iota + 1
	DidNotInsert
	Uploaded
	UploadedWithGap
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoNewRows:
		return "no_new_rows"
	case DidNotInsert:
		return "did_not_insert"
	case Uploaded:
		return "uploaded"
	case UploadedWithGap:
		return "uploaded_with_gap"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result summarises one Upload call.
type Result struct {
	Station string
	Outcome Outcome
	Rows    int64
	Gaps    []Gap
	Err     error
	At      time.Time
	DryRun  bool
}

// Journal receives the human-readable upload log lines.
type Journal interface {
	Record(level slog.Level, station, msg string) error
}

// Reporter observes upload results and database retries.
type Reporter interface {
	Outcome(Result)
	Retry(station string, attempt int, err error)
}

// Options configures an Uploader.
type Options struct {
	// InsertDespiteGap writes new rows even when an array does not continue
	// the stored sequence; the gap is journalled as a warning.
	InsertDespiteGap bool
	// RetryAttempts bounds database retries; zero retries until the context ends.
	RetryAttempts int
	RetryDelay    time.Duration
	// DryRun stops short of the bulk append.
	DryRun bool
}

// DefaultOptions are the production settings.
func DefaultOptions() Options {
	return Options{InsertDespiteGap: true, RetryDelay: store.DefaultRetryDelay}
}

// Uploader runs the dedupe, continuity and append sequence for one file.
type Uploader struct {
	store     store.Store
	journal   Journal
	log       *slog.Logger
	opts      Options
	reporters []Reporter
	now       func() time.Time
}

// New builds an Uploader.
func New(s store.Store, j Journal, log *slog.Logger, opts Options, reporters ...Reporter) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{store: s, journal: j, log: log, opts: opts, reporters: reporters, now: time.Now}
}

const stampLayout = "2006-01-02 15:04:05"

// Upload writes the rows of raw that are not yet stored. It always returns
// exactly one outcome and journals exactly one terminal line; database write
// failures are reported in the Result, never returned.
func (u *Uploader) Upload(ctx context.Context, raw *datfile.RawFile) Result {
	st := raw.Station
	res := u.upload(ctx, st, raw)
	res.Station = st.Code
	res.At = u.now()
	res.DryRun = u.opts.DryRun
	for _, r := range u.reporters {
		r.Outcome(res)
	}
	return res
}

func (u *Uploader) upload(ctx context.Context, st *stations.Station, raw *datfile.RawFile) Result {
	table := st.Table()
	retry := u.retry(st.Code)

	var existing stations.KeySet
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		existing, err = u.store.ExistingKeys(ctx, table)
		return err
	})
	if err != nil {
		return u.failed(st, err)
	}

	fresh, dropped := CollapseDuplicates(RemoveExisting(raw, existing))
	if dropped > 0 {
		u.log.Warn("dropped duplicate keys within datalogger file", "station", st.Code, "dropped", dropped)
	}
	if fresh.Len() == 0 {
		u.record(slog.LevelInfo, st.Code, fmt.Sprintf("No new rows to upload at %s", u.stamp()))
		return Result{Outcome: NoNewRows}
	}

	var gaps []Gap
	for _, id := range fresh.ArrayIDs() {
		arr, _ := st.Array(id)
		var (
			gap        Gap
			continuous bool
		)
		err := retry.Do(ctx, func(ctx context.Context) error {
			var err error
			gap, continuous, err = CheckContinuity(ctx, u.store, table, fresh, arr)
			return err
		})
		if err != nil {
			return u.failed(st, err)
		}
		if continuous {
			continue
		}
		if !u.opts.InsertDespiteGap {
			u.record(slog.LevelWarn, st.Code, fmt.Sprintf(
				"Opted to not upload data from arrayid %d that is %s hours from the last data point",
				gap.ArrayID, hours(gap)))
			return Result{Outcome: DidNotInsert, Gaps: []Gap{gap}}
		}
		gaps = append(gaps, gap)
	}

	for _, gap := range gaps {
		u.record(slog.LevelWarn, st.Code, fmt.Sprintf(
			"Uploading data from arrayid %d that is %s hours from the last data point",
			gap.ArrayID, hours(gap)))
	}

	outcome := Uploaded
	if len(gaps) > 0 {
		outcome = UploadedWithGap
	}

	if u.opts.DryRun {
		u.record(slog.LevelInfo, st.Code, fmt.Sprintf("Dry run: %s records not uploaded at %s",
			humanize.Comma(int64(fresh.Len())), u.stamp()))
		return Result{Outcome: outcome, Rows: int64(fresh.Len()), Gaps: gaps}
	}

	cols, rows := fresh.Rows()
	n, err := u.store.Append(ctx, table, cols, rows)
	if err != nil {
		return u.failed(st, err)
	}

	u.record(slog.LevelInfo, st.Code, fmt.Sprintf("Successful upload of %s records at %s", humanize.Comma(n), u.stamp()))
	return Result{Outcome: outcome, Rows: n, Gaps: gaps}
}

func (u *Uploader) failed(st *stations.Station, err error) Result {
	u.record(slog.LevelError, st.Code, fmt.Sprintf("Upload to database failed at %s: %v", u.stamp(), err))
	return Result{Outcome: Failed, Err: err}
}

func (u *Uploader) retry(station string) store.Retry {
	return store.Retry{
		Attempts:  u.opts.RetryAttempts,
		Delay:     u.opts.RetryDelay,
		Retryable: store.IsConnectivity,
		OnRetry: func(attempt int, err error) {
			u.log.Warn("database connection failed, retrying",
				"station", station, "attempt", attempt, "delay", u.opts.RetryDelay, "err", err)
			for _, r := range u.reporters {
				r.Retry(station, attempt, err)
			}
		},
	}
}

func (u *Uploader) record(level slog.Level, station, msg string) {
	if u.journal == nil {
		u.log.Log(context.Background(), level, msg, "station", station)
		return
	}
	if err := u.journal.Record(level, station, msg); err != nil {
		u.log.Error("write upload log", "station", station, "err", err)
	}
}

func (u *Uploader) stamp() string { return u.now().Format(stampLayout) }

func hours(g Gap) string {
	return strconv.FormatFloat(g.Hours(), 'f', -1, 64)
}
