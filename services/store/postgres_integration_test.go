//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/snowstudies/csas-stations/services/stations"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "csas",
			"POSTGRES_PASSWORD": "csas",
			"POSTGRES_DB":       "csas",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://csas:csas@%s:%s/csas?sslmode=disable", host, port.Port())
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	s, err := Open(ctx, "postgres", dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	st, err := stations.NewStation(stations.StationSpec{
		Code:  "SASP",
		Table: "swampangel",
		Fields: []stations.Field{
			{Name: "arrayid", Type: stations.Integer},
			{Name: "year", Type: stations.Integer},
			{Name: "doy", Type: stations.Integer},
			{Name: "hour", Type: stations.Integer},
			{Name: "temp", Type: stations.Float},
		},
		Arrays: []stations.DataArray{{ID: 1, Label: "1hour", IntervalMinutes: 60}},
	})
	require.NoError(t, err)

	pg := s.(*Postgres)
	_, err = pg.pool.Exec(ctx, stations.CreateTableSQL(st))
	require.NoError(t, err)

	table := st.Table()
	_, ok, err := s.LatestTime(ctx, table, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Append(ctx, table, []string{"arrayid", "year", "doy", "hour", "temp", "datetime"}, [][]any{
		{int64(1), int64(2024), int64(61), int64(1000), float64(-2.5), at(10, 0)},
		{int64(1), int64(2024), int64(61), int64(1100), nil, at(11, 0)},
		{int64(1), int64(2024), int64(61), int64(1200), float64(-1), nil},
		{nil, int64(2024), int64(61), int64(1300), float64(-1), at(13, 0)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	// rows with a NULL key are not part of the key set
	keys, err := s.ExistingKeys(ctx, table)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.True(t, keys.Has(stations.Key{ArrayID: 1, Time: at(10, 0)}))

	latest, ok, err := s.LatestTime(ctx, table, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at(11, 0), latest)

	points, err := s.Series(ctx, SeriesQuery{Table: table, ArrayID: 1, Field: "temp", Start: at(0, 0), End: at(23, 0)})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, -2.5, *points[0].Value, 1e-6)
	assert.Nil(t, points[1].Value)
}
