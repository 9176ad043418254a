package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/snowstudies/csas-stations/services/stations"
)

// Operation names accepted by Memory.Inject.
const (
	OpExistingKeys = "existing_keys"
	OpLatestTime   = "latest_time"
	OpAppend       = "append"
	OpSeries       = "series"
)

// Memory is an in-process Store for tests and dry runs. Rows are kept as
// column-name maps per table.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	faults map[string][]error
	calls  map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string][]map[string]any),
		faults: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

// Inject makes the next n calls of op fail with err.
func (m *Memory) Inject(op string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.faults[op] = append(m.faults[op], err)
	}
}

// Calls returns how many times op has been invoked, failed calls included.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Rows returns a copy of the rows stored in table.
func (m *Memory) Rows(table string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.tables[strings.ToLower(table)]
	out := make([]map[string]any, len(src))
	for i, r := range src {
		cp := make(map[string]any, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

func (m *Memory) enter(op string) error {
	m.calls[op]++
	if q := m.faults[op]; len(q) > 0 {
		m.faults[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func (m *Memory) ExistingKeys(_ context.Context, t stations.Table) (stations.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpExistingKeys); err != nil {
		return nil, err
	}
	keys := make(stations.KeySet)
	for _, r := range m.tables[strings.ToLower(t.Name)] {
		if k, ok := rowKey(r, t); ok {
			keys.Add(k)
		}
	}
	return keys, nil
}

func (m *Memory) LatestTime(_ context.Context, t stations.Table, arrayID int) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpLatestTime); err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	found := false
	for _, r := range m.tables[strings.ToLower(t.Name)] {
		k, ok := rowKey(r, t)
		if !ok || k.ArrayID != arrayID {
			continue
		}
		if !found || k.Time.After(latest) {
			latest, found = k.Time, true
		}
	}
	return latest, found, nil
}

func (m *Memory) Append(_ context.Context, t stations.Table, columns []string, rows [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpAppend); err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("append row %d: %d values for %d columns", i+1, len(row), len(columns))
		}
	}
	name := strings.ToLower(t.Name)
	for _, row := range rows {
		rec := make(map[string]any, len(columns))
		for i, c := range columns {
			rec[strings.ToLower(c)] = row[i]
		}
		m.tables[name] = append(m.tables[name], rec)
	}
	return int64(len(rows)), nil
}

func (m *Memory) Series(_ context.Context, q SeriesQuery) ([]Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSeries); err != nil {
		return nil, err
	}
	start, end := stations.Naive(q.Start), stations.Naive(q.End)
	field := strings.ToLower(q.Field)

	points := make([]Point, 0)
	for _, r := range m.tables[strings.ToLower(q.Table.Name)] {
		k, ok := rowKey(r, q.Table)
		if !ok || k.ArrayID != q.ArrayID || k.Time.Before(start) || k.Time.After(end) {
			continue
		}
		points = append(points, Point{Time: k.Time, Value: toFloat(r[field])})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

func rowKey(r map[string]any, t stations.Table) (stations.Key, bool) {
	ts, ok := r[strings.ToLower(t.TimeColumn)].(time.Time)
	if !ok {
		return stations.Key{}, false
	}
	id := toFloat(r[strings.ToLower(t.ArrayColumn)])
	if id == nil {
		return stations.Key{}, false
	}
	return stations.NewKey(int(*id), ts), true
}

func toFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	default:
		return nil
	}
	return &f
}
