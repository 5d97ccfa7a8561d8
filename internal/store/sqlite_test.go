package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/energy-monitor/server/internal/core/error"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), Config{
		DSN:       "file:" + filepath.Join(t.TempDir(), "readings.db"),
		Namespace: "energy_monitoring",
		Table:     "meter_readings",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSQLiteCreateTable(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	ok, err := s.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateTable(ctx))
	require.NoError(t, s.CreateTable(ctx), "creating twice is a no-op")

	ok, err = s.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteUpsertIsIdempotentByDate(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	require.NoError(t, s.CreateTable(ctx))

	require.NoError(t, s.UpsertByDate(ctx, day("2024-01-15"), 100, "+33600000001"))
	require.NoError(t, s.UpsertByDate(ctx, day("2024-01-15"), 250.5, "+33600000002"))

	rows, err := s.QueryLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 250.5, rows[0].Measurement)
	assert.Equal(t, "+33600000002", rows[0].Source)
	assert.Equal(t, "2024-01-15", rows[0].Date.Format(DateLayout))
	assert.False(t, rows[0].RecordedAt.IsZero())
}

func TestSQLiteQueryLatestAndRange(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	require.NoError(t, s.CreateTable(ctx))

	for i, d := range []string{"2024-01-10", "2024-01-12", "2024-01-11", "2024-01-14"} {
		require.NoError(t, s.UpsertByDate(ctx, day(d), float64(i+1), ""))
	}

	latest, err := s.QueryLatest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "2024-01-14", latest[0].Date.Format(DateLayout))
	assert.Equal(t, "2024-01-12", latest[1].Date.Format(DateLayout))
	assert.Empty(t, latest[0].Source)

	ranged, err := s.QueryRange(ctx, day("2024-01-11"))
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, "2024-01-11", ranged[0].Date.Format(DateLayout))
	assert.Equal(t, "2024-01-14", ranged[2].Date.Format(DateLayout))
}

func TestSQLiteMissingTableIsNotFound(t *testing.T) {
	s := newSQLite(t)

	_, err := s.QueryLatest(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "bigtable"})
	assert.Error(t, err)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	got := Day(time.Date(2024, 1, 15, 0, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)
}
