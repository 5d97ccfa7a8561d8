package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	errx "github.com/energy-monitor/server/internal/core/error"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// SQLite is the embedded backend. SQLite has no schemas, so the namespace
// becomes a table-name prefix.
type SQLite struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// OpenSQLite opens the database named by cfg.DSN.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLite, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	table := cfg.Table
	if cfg.Namespace != "" {
		table = cfg.Namespace + "__" + cfg.Table
	}
	logx.Debug().Str("driver", "sqlite").Str("table", table).Msg("Store opened")
	return &SQLite{db: db, table: table, now: time.Now}, nil
}

func (s *SQLite) quoted() string {
	return `"` + strings.ReplaceAll(s.table, `"`, `""`) + `"`
}

func (s *SQLite) TableExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, s.table,
	).Scan(&n)
	if err != nil {
		return false, wrapSQLite(err)
	}
	return n > 0, nil
}

func (s *SQLite) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.quoted()+` (
		date        TEXT NOT NULL PRIMARY KEY,
		measurement REAL NOT NULL,
		recorded_at TEXT NOT NULL,
		source      TEXT
	)`)
	if err != nil {
		return wrapSQLite(err)
	}
	logx.Info().Str("table", s.table).Msg("Readings table ready")
	return nil
}

func (s *SQLite) UpsertByDate(ctx context.Context, date time.Time, measurement float64, source string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+s.quoted()+` (date, measurement, recorded_at, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			measurement = excluded.measurement,
			recorded_at = excluded.recorded_at,
			source      = excluded.source`,
		date.Format(DateLayout), measurement, s.now().UTC().Format(time.RFC3339Nano), nullable(source),
	)
	return wrapSQLite(err)
}

func (s *SQLite) QueryLatest(ctx context.Context, n int) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, measurement, recorded_at, source FROM `+s.quoted()+` ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, wrapSQLite(err)
	}
	return scanSQLite(rows)
}

func (s *SQLite) QueryRange(ctx context.Context, from time.Time) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, measurement, recorded_at, source FROM `+s.quoted()+` WHERE date >= ? ORDER BY date ASC`,
		from.Format(DateLayout))
	if err != nil {
		return nil, wrapSQLite(err)
	}
	return scanSQLite(rows)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanSQLite(rows *sql.Rows) ([]Reading, error) {
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			date, recorded string
			source         sql.NullString
			r              Reading
		)
		if err := rows.Scan(&date, &r.Measurement, &recorded, &source); err != nil {
			return nil, wrapSQLite(err)
		}
		d, err := time.Parse(DateLayout, date)
		if err != nil {
			return nil, errx.WrapStore(fmt.Errorf("parse date %q: %w", date, err), errx.KindUnexpected)
		}
		r.Date = d
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		r.Source = source.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLite(err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// wrapSQLite classifies SQLite errors. Lock contention is transient; a
// missing table is not-found; read-only or auth failures are permission.
func wrapSQLite(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errx.WrapStore(err, errx.KindTransient)
		case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
			return errx.WrapStore(err, errx.KindPermission)
		}
	}
	if strings.Contains(err.Error(), "no such table") {
		return errx.WrapStore(err, errx.KindNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errx.WrapStore(err, errx.KindTransient)
	}
	return errx.WrapStore(err, errx.KindUnexpected)
}
