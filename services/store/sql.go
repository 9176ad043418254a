package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"github.com/snowstudies/csas-stations/services/stations"
)

type dialect struct {
	driver string
	quote  func(string) string
}

var dialects = map[string]dialect{
	"mysql": {
		driver: "mysql",
		quote:  func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	},
	"sqlite3": {
		driver: "sqlite3",
		quote:  func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	},
}

// SQL is a Store over database/sql for MySQL and SQLite.
type SQL struct {
	db *sql.DB
	d  dialect
}

// NewSQL opens a database/sql Store. driverName is "mysql" or "sqlite3".
func NewSQL(driverName, dsn string) (*SQL, error) {
	d, ok := dialects[driverName]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}

	if driverName == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return &SQL{db: db, d: d}, nil
}

// WrapSQL builds a Store around an existing handle.
func WrapSQL(db *sql.DB, driverName string) (*SQL, error) {
	d, ok := dialects[driverName]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}
	return &SQL{db: db, d: d}, nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Ping(ctx context.Context) error {
	return sqlClassify("ping", s.db.PingContext(ctx))
}

func (s *SQL) ExistingKeys(ctx context.Context, t stations.Table) (stations.KeySet, error) {
	q := fmt.Sprintf("SELECT %s, %s FROM %s",
		s.d.quote(t.ArrayColumn), s.d.quote(t.TimeColumn), s.d.quote(t.Name))

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, sqlClassify("existing keys", err)
	}
	defer rows.Close()

	keys := make(stations.KeySet)
	for rows.Next() {
		var id sql.NullFloat64
		var ts sql.NullTime
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		if !id.Valid || !ts.Valid {
			continue
		}
		keys.Add(stations.Key{ArrayID: int(id.Float64), Time: ts.Time})
	}
	return keys, sqlClassify("existing keys", rows.Err())
}

// LatestTime orders instead of using MAX() because SQLite drops the declared
// column type on aggregates and the driver would return text.
func (s *SQL) LatestTime(ctx context.Context, t stations.Table, arrayID int) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[3]s = ? AND %[1]s IS NOT NULL ORDER BY %[1]s DESC LIMIT 1",
		s.d.quote(t.TimeColumn), s.d.quote(t.Name), s.d.quote(t.ArrayColumn))

	var latest time.Time
	err := s.db.QueryRowContext(ctx, q, arrayID).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, sqlClassify("latest time", err)
	}
	return stations.Naive(latest), true, nil
}

// Append inserts rows in one transaction with a prepared statement.
func (s *SQL) Append(ctx context.Context, t stations.Table, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.d.quote(c)
		marks[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.d.quote(t.Name), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, sqlClassify("append", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, sqlClassify("append", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, sqlClassify(fmt.Sprintf("append row %d", i+1), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, sqlClassify("append", err)
	}
	return int64(len(rows)), nil
}

func (s *SQL) Series(ctx context.Context, q SeriesQuery) ([]Point, error) {
	query := fmt.Sprintf("SELECT %[1]s, %[2]s FROM %[3]s WHERE %[4]s = ? AND %[1]s BETWEEN ? AND ? ORDER BY %[1]s",
		s.d.quote(q.Table.TimeColumn), s.d.quote(q.Field), s.d.quote(q.Table.Name), s.d.quote(q.Table.ArrayColumn))

	rows, err := s.db.QueryContext(ctx, query, q.ArrayID, stations.Naive(q.Start), stations.Naive(q.End))
	if err != nil {
		return nil, sqlClassify("series", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		var ts time.Time
		var v sql.NullFloat64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, err
		}
		pt := Point{Time: stations.Naive(ts)}
		if v.Valid {
			val := v.Float64
			pt.Value = &val
		}
		points = append(points, pt)
	}
	return points, sqlClassify("series", rows.Err())
}

// sqlClassify treats driver-reported server errors as query failures and
// everything else as the database being unreachable.
func sqlClassify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return &ConnectivityError{Op: op, Err: err}
	}
	var myErr *mysql.MySQLError
	var liteErr sqlite3.Error
	if errors.As(err, &myErr) || errors.As(err, &liteErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &ConnectivityError{Op: op, Err: err}
}
