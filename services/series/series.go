// Package series reads station fields back out of the database as one
// time-aligned table, the shape both the dashboard and the API serve.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/store"
)

var (
	// ErrUnknownField is returned when a request names a field the station
	// header does not carry.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownInterval is returned when a station has no data array with the
	// requested label.
	ErrUnknownInterval = errors.New("unknown interval")
)

// Request selects one field of one station.
type Request struct {
	Station string `json:"station" yaml:"station"`
	Field   string `json:"field" yaml:"field"`
}

// Name is the column name a request produces, "{station}_{field}".
func (r Request) Name() string {
	return strings.ToUpper(strings.TrimSpace(r.Station)) + "_" + strings.ToLower(strings.TrimSpace(r.Field))
}

// ParseRequest reads the "STATION:field" form used on the API query string.
func ParseRequest(s string) (Request, error) {
	station, field, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(station) == "" || strings.TrimSpace(field) == "" {
		return Request{}, fmt.Errorf("invalid line %q, want STATION:field", s)
	}
	return Request{Station: strings.TrimSpace(station), Field: strings.TrimSpace(field)}, nil
}

// Column is one named series aligned to Table.Times; nil means no reading.
type Column struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

// AllNull reports whether the column carries no reading at all.
func (c Column) AllNull() bool {
	for _, v := range c.Values {
		if v != nil {
			return false
		}
	}
	return true
}

// Table is the outer join of every requested series on timestamp.
type Table struct {
	Times   []time.Time `json:"times"`
	Columns []Column    `json:"columns"`
}

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// DefaultRetry retries each query once before giving up.
var DefaultRetry = store.Retry{Attempts: 2, Delay: time.Second}

// Fetcher resolves requests against the registry and reads them from Store.
type Fetcher struct {
	Store    store.Store
	Registry *stations.Registry
	Retry    store.Retry
	Log      *slog.Logger
}

// NewFetcher returns a Fetcher using DefaultRetry.
func NewFetcher(s store.Store, reg *stations.Registry, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{Store: s, Registry: reg, Retry: DefaultRetry, Log: log}
}

// Fetch reads every request between start and end inclusive from the data
// array labelled interval and joins them on timestamp. Repeated requests for
// the same column are fetched once.
func (f *Fetcher) Fetch(ctx context.Context, reqs []Request, start, end time.Time, interval string) (*Table, error) {
	type query struct {
		name string
		q    store.SeriesQuery
	}

	seen := make(map[string]bool, len(reqs))
	queries := make([]query, 0, len(reqs))
	for _, r := range reqs {
		name := r.Name()
		if seen[name] {
			continue
		}
		seen[name] = true

		st, err := f.Registry.Station(r.Station)
		if err != nil {
			return nil, err
		}
		if !st.HasField(r.Field) {
			return nil, fmt.Errorf("%w %q for station %s", ErrUnknownField, r.Field, st.Code)
		}
		arr, ok := st.ArrayByLabel(interval)
		if !ok {
			return nil, fmt.Errorf("%w %q for station %s", ErrUnknownInterval, interval, st.Code)
		}
		queries = append(queries, query{name: name, q: store.SeriesQuery{
			Table:   st.Table(),
			ArrayID: arr.ID,
			Field:   strings.ToLower(strings.TrimSpace(r.Field)),
			Start:   start,
			End:     end,
		}})
	}

	fetched := make([][]store.Point, len(queries))
	for i, qq := range queries {
		retry := f.Retry
		retry.OnRetry = func(attempt int, err error) {
			f.log().Warn("series query failed, retrying", "column", qq.name, "attempt", attempt, "err", err)
		}
		err := retry.Do(ctx, func(ctx context.Context) error {
			points, err := f.Store.Series(ctx, qq.q)
			if err != nil {
				return err
			}
			fetched[i] = points
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", qq.name, err)
		}
		f.log().Debug("series fetched", "column", qq.name, "points", len(fetched[i]))
	}

	names := make([]string, len(queries))
	for i, qq := range queries {
		names[i] = qq.name
	}
	return join(names, fetched), nil
}

func (f *Fetcher) log() *slog.Logger {
	if f.Log == nil {
		return slog.Default()
	}
	return f.Log
}

// join builds the ascending union of all timestamps and places each series on
// it. Within one series a repeated timestamp keeps its first value.
func join(names []string, series [][]store.Point) *Table {
	index := make(map[time.Time]int)
	var times []time.Time
	for _, points := range series {
		for _, p := range points {
			t := stations.Naive(p.Time)
			if _, ok := index[t]; !ok {
				index[t] = 0
				times = append(times, t)
			}
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, t := range times {
		index[t] = i
	}

	tbl := &Table{Times: times, Columns: make([]Column, len(names))}
	for c, points := range series {
		values := make([]*float64, len(times))
		filled := make([]bool, len(times))
		for _, p := range points {
			i := index[stations.Naive(p.Time)]
			if filled[i] {
				continue
			}
			filled[i] = true
			values[i] = p.Value
		}
		tbl.Columns[c] = Column{Name: names[c], Values: values}
	}
	return tbl
}
