package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snowstudies/csas-stations/services/stations"
)

// Postgres is a Store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Store backed by a pgx pool.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool resources.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return pgClassify("ping", p.pool.Ping(ctx))
}

// Unquoted identifiers fold to lower case in Postgres, so tables created by
// CreateTableSQL are matched by their lower-cased name.
func pgIdent(name string) string {
	return pgx.Identifier{strings.ToLower(name)}.Sanitize()
}

func (p *Postgres) ExistingKeys(ctx context.Context, t stations.Table) (stations.KeySet, error) {
	sql := fmt.Sprintf("SELECT %s::integer, %s FROM %s",
		pgIdent(t.ArrayColumn), pgIdent(t.TimeColumn), pgIdent(t.Name))

	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, pgClassify("existing keys", err)
	}
	defer rows.Close()

	keys := make(stations.KeySet)
	for rows.Next() {
		var id *int
		var ts *time.Time
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		if id == nil || ts == nil {
			continue
		}
		keys.Add(stations.Key{ArrayID: *id, Time: stations.Naive(*ts)})
	}
	return keys, pgClassify("existing keys", rows.Err())
}

func (p *Postgres) LatestTime(ctx context.Context, t stations.Table, arrayID int) (time.Time, bool, error) {
	sql := fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s = $1",
		pgIdent(t.TimeColumn), pgIdent(t.Name), pgIdent(t.ArrayColumn))

	var latest *time.Time
	if err := p.pool.QueryRow(ctx, sql, arrayID).Scan(&latest); err != nil {
		return time.Time{}, false, pgClassify("latest time", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return stations.Naive(*latest), true, nil
}

// Append writes rows with COPY.
func (p *Postgres) Append(ctx context.Context, t stations.Table, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(c)
	}
	n, err := p.pool.CopyFrom(ctx, pgx.Identifier{strings.ToLower(t.Name)}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, pgClassify("append", err)
	}
	return n, nil
}

func (p *Postgres) Series(ctx context.Context, q SeriesQuery) ([]Point, error) {
	sql := fmt.Sprintf(`SELECT %[1]s, %[2]s::double precision FROM %[3]s
WHERE %[4]s = $1 AND %[1]s BETWEEN $2 AND $3
ORDER BY %[1]s`,
		pgIdent(q.Table.TimeColumn), pgIdent(q.Field), pgIdent(q.Table.Name), pgIdent(q.Table.ArrayColumn))

	rows, err := p.pool.Query(ctx, sql, q.ArrayID, stations.Naive(q.Start), stations.Naive(q.End))
	if err != nil {
		return nil, pgClassify("series", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		var pt Point
		if err := rows.Scan(&pt.Time, &pt.Value); err != nil {
			return nil, err
		}
		pt.Time = stations.Naive(pt.Time)
		points = append(points, pt)
	}
	return points, pgClassify("series", rows.Err())
}

// pgClassify marks everything except server-reported errors and context
// cancellation as a connectivity failure.
func pgClassify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &ConnectivityError{Op: op, Err: err}
}
