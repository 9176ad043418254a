// Package store is the data-access layer shared by the uploader, the dashboard
// renderer and the API. Every backend speaks in stations.Key terms so the
// reconciler and the fetcher never see driver-specific time handling.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/snowstudies/csas-stations/services/stations"
)

// Store is the narrow set of operations the pipelines need.
type Store interface {
	// ExistingKeys returns every (array id, datetime) pair stored in t.
	ExistingKeys(ctx context.Context, t stations.Table) (stations.KeySet, error)
	// LatestTime returns the newest datetime stored for arrayID; ok is false
	// when the array has no rows.
	LatestTime(ctx context.Context, t stations.Table, arrayID int) (latest time.Time, ok bool, err error)
	// Append bulk-inserts rows positionally matching columns.
	Append(ctx context.Context, t stations.Table, columns []string, rows [][]any) (int64, error)
	// Series returns one field of one array between q.Start and q.End inclusive.
	Series(ctx context.Context, q SeriesQuery) ([]Point, error)
	Ping(ctx context.Context) error
	Close() error
}

// SeriesQuery selects a single field for one data array over a time range.
type SeriesQuery struct {
	Table   stations.Table
	ArrayID int
	Field   string
	Start   time.Time
	End     time.Time
}

// Point is one timestamped value; Value is nil for NULL.
type Point struct {
	Time  time.Time `json:"t"`
	Value *float64  `json:"v"`
}

// Open connects to the backend named by driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, dsn)
	case "mysql":
		return NewSQL("mysql", dsn)
	case "sqlite", "sqlite3":
		return NewSQL("sqlite3", dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}
