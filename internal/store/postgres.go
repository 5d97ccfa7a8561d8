package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	errx "github.com/energy-monitor/server/internal/core/error"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// Postgres stores readings in <namespace>.<table>.
type Postgres struct {
	pool      *pgxpool.Pool
	namespace string
	table     string
	now       func() time.Time
}

// OpenPostgres creates a connection pool for cfg.DSN.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping pool: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "public"
	}
	logx.Debug().Str("driver", "postgres").Str("namespace", ns).Str("table", cfg.Table).Msg("Store opened")
	return &Postgres{pool: pool, namespace: ns, table: cfg.Table, now: time.Now}, nil
}

func (p *Postgres) ident() string {
	return pgx.Identifier{p.namespace, p.table}.Sanitize()
}

func (p *Postgres) TableExists(ctx context.Context) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, p.namespace, p.table,
	).Scan(&ok)
	if err != nil {
		return false, wrapPostgres(err)
	}
	return ok, nil
}

func (p *Postgres) CreateTable(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{p.namespace}.Sanitize()); err != nil {
		return wrapPostgres(err)
	}
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.ident()+` (
		date        DATE             NOT NULL PRIMARY KEY,
		measurement DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ      NOT NULL,
		source      TEXT
	)`)
	if err != nil {
		return wrapPostgres(err)
	}
	logx.Info().Str("namespace", p.namespace).Str("table", p.table).Msg("Readings table ready")
	return nil
}

func (p *Postgres) UpsertByDate(ctx context.Context, date time.Time, measurement float64, source string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO `+p.ident()+` (date, measurement, recorded_at, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE SET
			measurement = EXCLUDED.measurement,
			recorded_at = EXCLUDED.recorded_at,
			source      = EXCLUDED.source`,
		Day(date), measurement, p.now().UTC(), nullable(source),
	)
	return wrapPostgres(err)
}

func (p *Postgres) QueryLatest(ctx context.Context, n int) ([]Reading, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT date, measurement, recorded_at, source FROM `+p.ident()+` ORDER BY date DESC LIMIT $1`, n)
	if err != nil {
		return nil, wrapPostgres(err)
	}
	return scanPostgres(rows)
}

func (p *Postgres) QueryRange(ctx context.Context, from time.Time) ([]Reading, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT date, measurement, recorded_at, source FROM `+p.ident()+` WHERE date >= $1 ORDER BY date ASC`,
		Day(from))
	if err != nil {
		return nil, wrapPostgres(err)
	}
	return scanPostgres(rows)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgres(rows pgx.Rows) ([]Reading, error) {
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r      Reading
			source *string
		)
		if err := rows.Scan(&r.Date, &r.Measurement, &r.RecordedAt, &source); err != nil {
			return nil, wrapPostgres(err)
		}
		if source != nil {
			r.Source = *source
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPostgres(err)
	}
	return out, nil
}

// Postgres SQLSTATE codes that decide retry behaviour.
const (
	pgInsufficientPrivilege = "42501"
	pgUndefinedTable        = "42P01"
	pgInvalidSchemaName     = "3F000"
)

func wrapPostgres(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInsufficientPrivilege:
			return errx.WrapStore(err, errx.KindPermission)
		case pgUndefinedTable, pgInvalidSchemaName:
			return errx.WrapStore(err, errx.KindNotFound)
		}
		// Class 08 is connection exceptions, 40 transaction rollback, 53
		// insufficient resources, 57 operator intervention.
		switch pgErr.Code[:2] {
		case "08", "40", "53", "57":
			return errx.WrapStore(err, errx.KindTransient)
		}
		return errx.WrapStore(err, errx.KindUnexpected)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errx.IsNetwork(err) {
		return errx.WrapStore(err, errx.KindTransient)
	}
	return errx.WrapStore(err, errx.KindUnexpected)
}
