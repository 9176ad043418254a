package schedule

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/uploader/internal/datfile"
	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	slept  time.Duration
	cancel func()
	limit  time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.slept += d
	if c.limit > 0 && c.slept >= c.limit && c.cancel != nil {
		c.cancel()
	}
	return nil
}

func clockAt(h, m, s, ns int) *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, h, m, s, ns, time.UTC)}
}

func TestParseAlignment(t *testing.T) {
	tests := []struct {
		spec  string
		every int
		unit  Unit
	}{
		{"hour", 1, Hour},
		{"min", 1, Minute},
		{"5 sec", 5, Second},
		{"2 min", 2, Minute},
		{" 12   min ", 12, Minute},
		{"3 hour", 3, Hour},
		{"6 hours", 6, Hour},
	}
	for _, tt := range tests {
		a, err := ParseAlignment(tt.spec)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.every, a.Every, tt.spec)
		assert.Equal(t, tt.unit, a.Unit, tt.spec)
	}

	for _, bad := range []string{"1 sec", "sec", "0 min", "x min", "5 days", "", "every hour please"} {
		_, err := ParseAlignment(bad)
		var ua *UnsupportedAlignmentError
		assert.ErrorAs(t, err, &ua, bad)
	}
}

func TestWaitTwoMinutes(t *testing.T) {
	clock := clockAt(14, 7, 0, 0)
	at, err := Wait(context.Background(), clock, MustParseAlignment("2 min"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 14, 8, 0, 0, time.UTC), at)
	assert.False(t, at.Before(time.Date(2024, 3, 1, 14, 8, 0, 0, time.UTC)))
}

func TestWaitHour(t *testing.T) {
	clock := clockAt(9, 59, 58, 0)
	at, err := Wait(context.Background(), clock, MustParseAlignment("hour"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), at)
}

func TestWaitSnapsToAccuracyBoundary(t *testing.T) {
	clock := clockAt(9, 59, 59, 400_000_000)
	at, err := Wait(context.Background(), clock, MustParseAlignment("min"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), at)
	assert.Equal(t, 600*time.Millisecond, clock.slept)
}

func TestWaitAlreadyAligned(t *testing.T) {
	clock := clockAt(12, 0, 0, 0)
	_, err := Wait(context.Background(), clock, MustParseAlignment("3 hour"), 0)
	require.NoError(t, err)
	assert.Zero(t, clock.slept)
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockAt(10, 0, 1, 0)
	clock.cancel, clock.limit = cancel, 5*time.Second

	_, err := Wait(ctx, clock, MustParseAlignment("hour"), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPlanWakesAtTwelvePast(t *testing.T) {
	clock := clockAt(9, 40, 13, 0)
	at, err := DefaultPlan().Wait(context.Background(), clock)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 12, 0, 0, time.UTC), at)
}

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan("hour; 12 min", 5*time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hour; 12 min", p.String())

	_, err = ParsePlan(" ; ", 0, 0)
	assert.Error(t, err)
	_, err = ParsePlan("hour;1 sec", 0, 0)
	assert.Error(t, err)
}

type recordingUploader struct{ files []*datfile.RawFile }

func (u *recordingUploader) Upload(_ context.Context, raw *datfile.RawFile) reconcile.Result {
	u.files = append(u.files, raw)
	return reconcile.Result{Station: raw.Station.Code, Outcome: reconcile.Uploaded, Rows: int64(raw.Len())}
}

type passRecorder struct{ passes [][]reconcile.Result }

func (p *passRecorder) PassCompleted(_ string, _ time.Time, results []reconcile.Result) {
	p.passes = append(p.passes, results)
}

func runnerStation(t *testing.T, code, source string) *stations.Station {
	t.Helper()
	st, err := stations.NewStation(stations.StationSpec{
		Code:   code,
		Table:  code,
		Source: source,
		Fields: []stations.Field{
			{Name: "arrayid", Type: stations.Integer},
			{Name: "year", Type: stations.Integer},
			{Name: "doy", Type: stations.Integer},
			{Name: "hour", Type: stations.Integer},
			{Name: "pyup", Type: stations.Float},
			{Name: "pydwn", Type: stations.Float},
		},
		Arrays: []stations.DataArray{{ID: 1, Label: "1 Hour", IntervalMinutes: 60}},
		Albedo: &stations.AlbedoPair{Upward: "pyup", Downward: "pydwn"},
	})
	require.NoError(t, err)
	return st
}

func TestPassUploadsEachStation(t *testing.T) {
	files := map[string]string{
		"a.dat": "1,2024,61,100,400,100\n",
		"b.dat": "1,2024,61,100,0,5\n1,2024,61,200,10,5\n",
	}
	up := &recordingUploader{}
	obs := &passRecorder{}
	r := &Runner{
		Stations: []*stations.Station{
			runnerStation(t, "SASP", "a.dat"),
			runnerStation(t, "SBSP", "b.dat"),
			runnerStation(t, "PTSP", ""),
			runnerStation(t, "SBSG", "missing.dat"),
		},
		Uploader:  up,
		Observers: []PassObserver{obs},
		Fetch: func(_ context.Context, loc string) ([]byte, error) {
			body, ok := files[loc]
			if !ok {
				return nil, os.ErrNotExist
			}
			return []byte(body), nil
		},
	}

	results, err := r.Pass(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, up.files, 2)
	assert.Equal(t, "albedo", up.files[0].Columns[len(up.files[0].Columns)-1])
	assert.Nil(t, up.files[1].Records[0].Values[6])
	require.Len(t, obs.passes, 1)
}

func TestPassParseFailure(t *testing.T) {
	bad := func(context.Context, string) ([]byte, error) { return []byte("1,2024,61\n"), nil }

	t.Run("abort", func(t *testing.T) {
		r := &Runner{Stations: []*stations.Station{runnerStation(t, "SASP", "SASP.dat")}, Uploader: &recordingUploader{}, Fetch: bad}
		_, err := r.Pass(context.Background())
		var sm *datfile.SchemaMismatchError
		assert.ErrorAs(t, err, &sm)
	})

	t.Run("quarantine", func(t *testing.T) {
		dir := t.TempDir()
		up := &recordingUploader{}
		r := &Runner{
			Stations:      []*stations.Station{runnerStation(t, "SASP", "/data/SASP.dat")},
			Uploader:      up,
			Fetch:         bad,
			QuarantineDir: dir,
			Clock:         clockAt(10, 12, 0, 0),
		}
		_, err := r.Pass(context.Background())
		require.NoError(t, err)
		assert.Empty(t, up.files)

		body, err := os.ReadFile(filepath.Join(dir, "SASP_20240301T101200.dat"))
		require.NoError(t, err)
		assert.Equal(t, "1,2024,61\n", string(body))
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockAt(9, 59, 0, 0)
	clock.cancel, clock.limit = cancel, 3*time.Hour
	up := &recordingUploader{}

	r := &Runner{
		Stations: []*stations.Station{runnerStation(t, "SASP", "a.dat")},
		Uploader: up,
		Fetch:    func(context.Context, string) ([]byte, error) { return []byte("1,2024,61,100,1,1\n"), nil },
		Plan:     DefaultPlan(),
		Clock:    clock,
	}
	err := r.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	// initial pass plus 10:12, 11:12 and 12:12
	assert.Len(t, up.files, 4)
}

// passTimes records when each pass completed and cancels after stop passes.
type passTimes struct {
	clock  *fakeClock
	at     []time.Time
	stop   int
	cancel func()
}

func (p *passTimes) PassCompleted(string, time.Time, []reconcile.Result) {
	p.at = append(p.at, p.clock.Now())
	if len(p.at) == p.stop {
		p.cancel()
	}
}

func TestRunSingleStepPlanWaitsForNextBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockAt(10, 0, 0, 200_000_000)
	plan, err := ParsePlan("hour", 0, time.Second)
	require.NoError(t, err)
	times := &passTimes{clock: clock, stop: 3, cancel: cancel}

	r := &Runner{
		Stations:  []*stations.Station{runnerStation(t, "SASP", "a.dat")},
		Uploader:  &recordingUploader{},
		Fetch:     func(context.Context, string) ([]byte, error) { return []byte("1,2024,61,100,1,1\n"), nil },
		Plan:      plan,
		Clock:     clock,
		Observers: []PassObserver{times},
	}
	err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, times.at, 3)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), times.at[1])
	assert.Equal(t, time.Hour, times.at[2].Sub(times.at[1]))
}

func TestPlanNextSkipsLastSecond(t *testing.T) {
	clock := clockAt(10, 0, 0, 500_000_000)
	plan, err := ParsePlan("12 min", 0, time.Second)
	require.NoError(t, err)

	at, err := plan.Next(context.Background(), clock, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 12, 0, 0, time.UTC), at)
}

type journalLine struct {
	level   slog.Level
	station string
	msg     string
}

type memJournal struct{ lines []journalLine }

func (j *memJournal) Record(level slog.Level, station, msg string) error {
	j.lines = append(j.lines, journalLine{level, station, msg})
	return nil
}

func TestPassJournalsFetchFailure(t *testing.T) {
	j := &memJournal{}
	up := &recordingUploader{}
	r := &Runner{
		Stations: []*stations.Station{runnerStation(t, "SBSG", "/data/SBSG.dat")},
		Uploader: up,
		Fetch:    func(context.Context, string) ([]byte, error) { return nil, os.ErrNotExist },
		Clock:    clockAt(10, 12, 0, 0),
		Journal:  j,
	}

	results, err := r.Pass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, up.files)

	require.Len(t, j.lines, 1)
	assert.Equal(t, slog.LevelError, j.lines[0].level)
	assert.Equal(t, "SBSG", j.lines[0].station)
	assert.Equal(t, "Could not read datalogger file /data/SBSG.dat at 2024-03-01 10:12:00", j.lines[0].msg)
}
