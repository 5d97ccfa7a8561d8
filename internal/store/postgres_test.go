package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	errx "github.com/energy-monitor/server/internal/core/error"
)

func TestWrapPostgres(t *testing.T) {
	tests := []struct {
		code string
		want errx.Kind
	}{
		{"42501", errx.KindPermission},
		{"42P01", errx.KindNotFound},
		{"08006", errx.KindTransient},
		{"40001", errx.KindTransient},
		{"23505", errx.KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := wrapPostgres(&pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.want, errx.KindOf(err))
		})
	}

	assert.Nil(t, wrapPostgres(nil))
	assert.Equal(t, errx.KindTransient, errx.KindOf(wrapPostgres(context.DeadlineExceeded)))
	assert.Equal(t, errx.KindUnexpected, errx.KindOf(wrapPostgres(errors.New("boom"))))
}

// newPostgres starts a throwaway Postgres container. The test is skipped
// when Docker is unavailable.
func newPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "energy",
				"POSTGRES_PASSWORD": "energy",
				"POSTGRES_DB":       "energy",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	p, err := OpenPostgres(ctx, Config{
		DSN:       fmt.Sprintf("postgres://energy:energy@%s:%s/energy?sslmode=disable", host, port.Port()),
		Namespace: "energy_monitoring",
		Table:     "meter_readings",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newPostgres(t)

	ok, err := p.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.QueryLatest(ctx, 1)
	assert.True(t, errx.IsNotFound(err))

	require.NoError(t, p.CreateTable(ctx))
	ok, err = p.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.UpsertByDate(ctx, day("2024-01-15"), 10, "+1"))
	require.NoError(t, p.UpsertByDate(ctx, day("2024-01-15"), 12.25, "+2"))
	require.NoError(t, p.UpsertByDate(ctx, day("2024-01-16"), 13, ""))

	latest, err := p.QueryLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "2024-01-16", latest[0].Date.Format(DateLayout))
	assert.Equal(t, 12.25, latest[1].Measurement)
	assert.Equal(t, "+2", latest[1].Source)

	ranged, err := p.QueryRange(ctx, day("2024-01-16"))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, 13.0, ranged[0].Measurement)
}
