// Package store persists meter readings keyed by calendar date.
//
// One row exists per date. Writing a date that already has a row replaces
// its measurement, recorded_at and source, so several readings submitted on
// the same day collapse to the latest one.
package store

import (
	"context"
	"fmt"
	"time"
)

// DateLayout is the on-disk and display format of a reading date.
const DateLayout = "2006-01-02"

// Reading is one stored row.
type Reading struct {
	Date        time.Time
	Measurement float64
	RecordedAt  time.Time
	// Source is the sender that submitted the reading, if known.
	Source string
}

// Store is the reading sink used by the workflow and the query tools.
type Store interface {
	TableExists(ctx context.Context) (bool, error)
	// CreateTable creates the namespace and the readings table when missing.
	CreateTable(ctx context.Context) error
	UpsertByDate(ctx context.Context, date time.Time, measurement float64, source string) error
	// QueryLatest returns at most n rows, newest date first.
	QueryLatest(ctx context.Context, n int) ([]Reading, error)
	// QueryRange returns rows dated on or after from, oldest first.
	QueryRange(ctx context.Context, from time.Time) ([]Reading, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver    string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DSN       string `envconfig:"STORE_DSN" default:"file:energy.db?_pragma=busy_timeout(5000)"`
	Namespace string `envconfig:"STORE_NAMESPACE" default:"energy_monitoring"`
	Table     string `envconfig:"STORE_TABLE" default:"meter_readings"`
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg)
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// Day returns t's calendar date, in t's location, as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
