package steps

import (
	"context"
	"fmt"
	"time"

	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/retry"
	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const nodeStoreWriter = "store_writer"

// StoreWriterConfig wires the store writer.
type StoreWriterConfig struct {
	Store ReadingWriter
	// Retry governs the upsert. Defaults to retry.StoreWrite.
	Retry retry.Policy
	// OnResult observes the write outcome.
	OnResult func(ok bool)
}

// StoreWriter persists the extracted reading keyed by its date, creating
// the table first when missing. Permission and not-found failures are
// terminal.
func StoreWriter(cfg StoreWriterConfig) Func {
	policy := orDefault(cfg.Retry, retry.StoreWrite)
	report := func(ok bool) {
		if cfg.OnResult != nil {
			cfg.OnResult(ok)
		}
	}

	return guard(nodeStoreWriter, storeWriterFallback, func(ctx context.Context, s state.State) state.Patch {
		ts, hasTS := s.Timestamp()
		value, hasValue := s.Value()
		if !hasTS || !hasValue {
			stepLog(logx.Warn(), nodeStoreWriter, s).Msg("Missing extracted timestamp or measurement, skipping store write")
			return storeWriterFallback(s)
		}
		if err := ValidateMeasurement(&value); err != nil {
			stepLog(logx.Error(), nodeStoreWriter, s).Err(err).Msg("Invalid measurement, skipping store write")
			return storeWriterFallback(s)
		}
		date, err := ParseReadingDate(ts)
		if err != nil {
			stepLog(logx.Error(), nodeStoreWriter, s).Err(err).Msg("Invalid reading timestamp, skipping store write")
			return storeWriterFallback(s)
		}

		if err := write(ctx, cfg.Store, policy, date, value, s.SenderID); err != nil {
			ev := stepLog(logx.Error(), nodeStoreWriter, s).Err(err).Str("kind", errx.KindOf(err).String())
			switch {
			case errx.IsPermission(err):
				ev.Msg("Permission denied writing reading")
			case errx.IsNotFound(err):
				ev.Msg("Store resource not found")
			default:
				ev.Msg("Failed to write reading")
			}
			report(false)
			return storeWriterFallback(s)
		}

		stepLog(logx.Info(), nodeStoreWriter, s).
			Str("date", date.Format(time.DateOnly)).
			Float64("measurement", value).
			Msg("Reading stored")
		report(true)
		return state.Patch{StoreWriteSuccess: state.Bool(true)}
	})
}

func write(ctx context.Context, st ReadingWriter, policy retry.Policy, date time.Time, value float64, source string) error {
	exists, err := st.TableExists(ctx)
	if err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	if !exists {
		logx.Info().Msg("Readings table not found, creating")
		if err := st.CreateTable(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return retry.Run(ctx, policy, func(ctx context.Context) error {
		return st.UpsertByDate(ctx, date, value, source)
	})
}

// ParseReadingDate returns the calendar date of an ISO-8601 timestamp.
func ParseReadingDate(ts string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, TimestampLayout + ".999999999", time.DateOnly} {
		if t, err := time.Parse(layout, ts); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if len(ts) >= len(time.DateOnly) {
		if t, err := time.Parse(time.DateOnly, ts[:len(time.DateOnly)]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errx.Validation(fmt.Errorf("invalid date format: %q", ts), "invalid reading date")
}

func storeWriterFallback(state.State) state.Patch {
	return state.Patch{StoreWriteSuccess: state.Bool(false)}
}
