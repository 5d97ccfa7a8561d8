// Package price looks up the current electricity unit price. A cache file
// is preferred over a live fetch, and a fixed fallback covers both failing.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	SourceAPI      = "api"
	SourceFallback = "fallback"
)

// Config configures the lookup.
type Config struct {
	APIURL    string        `envconfig:"PRICE_API_URL"`
	CacheFile string        `envconfig:"PRICE_CACHE_FILE" default:"/tmp/energy-monitor/electricity_price_cache.json"`
	CacheTTL  time.Duration `envconfig:"PRICE_CACHE_TTL" default:"24h"`
	Fallback  float64       `envconfig:"PRICE_FALLBACK" default:"0.20"`
}

// Quote is a price with its provenance.
type Quote struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	// Cached is true when the quote came from the cache file.
	Cached bool `json:"-"`
}

// Fetcher retrieves a live price. A nil price means none was available.
type Fetcher interface {
	Fetch(ctx context.Context) (*float64, error)
}

// Service serves quotes. It is safe for concurrent use; concurrent cache
// misses share a single live fetch.
type Service struct {
	cfg     Config
	fetcher Fetcher
	group   singleflight.Group
	now     func() time.Time
}

// NewService returns a Service. fetcher may be nil, in which case only the
// cache and the fallback are used.
func NewService(cfg Config, fetcher Fetcher) *Service {
	return &Service{cfg: cfg, fetcher: fetcher, now: time.Now}
}

// Current returns the best available quote. It never fails.
func (s *Service) Current(ctx context.Context) Quote {
	if q, ok := s.readCache(); ok {
		return q
	}

	v, _, _ := s.group.Do("price", func() (any, error) {
		if q, ok := s.readCache(); ok {
			return q, nil
		}
		q := s.live(ctx)
		if err := s.writeCache(q); err != nil {
			logx.Error().Err(err).Str("file", s.cfg.CacheFile).Msg("Failed to write price cache")
		}
		return q, nil
	})
	return v.(Quote)
}

func (s *Service) live(ctx context.Context) Quote {
	if s.fetcher != nil {
		p, err := s.fetcher.Fetch(ctx)
		switch {
		case err != nil:
			logx.Warn().Err(err).Msg("Price API request failed")
		case p == nil:
			logx.Warn().Msg("Could not extract price from API response")
		default:
			logx.Info().Float64("price", *p).Msg("Fetched price from API")
			return Quote{Price: *p, Timestamp: s.now(), Source: SourceAPI}
		}
	}
	logx.Info().Float64("price", s.cfg.Fallback).Msg("Using fallback price")
	return Quote{Price: s.cfg.Fallback, Timestamp: s.now(), Source: SourceFallback}
}

func (s *Service) readCache() (Quote, bool) {
	if s.cfg.CacheFile == "" {
		return Quote{}, false
	}
	b, err := os.ReadFile(s.cfg.CacheFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logx.Warn().Err(err).Msg("Failed to read price cache")
		}
		return Quote{}, false
	}

	var raw struct {
		Price     *float64 `json:"price"`
		Timestamp string   `json:"timestamp"`
		Source    string   `json:"source"`
	}
	if err := json.Unmarshal(b, &raw); err != nil || raw.Price == nil || raw.Timestamp == "" || raw.Source == "" {
		logx.Warn().Err(err).Msg("Price cache has invalid structure")
		return Quote{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		logx.Warn().Err(err).Msg("Price cache has invalid timestamp")
		return Quote{}, false
	}
	if s.now().After(ts.Add(s.cfg.CacheTTL)) {
		logx.Debug().Dur("ttl", s.cfg.CacheTTL).Msg("Price cache expired")
		return Quote{}, false
	}
	return Quote{Price: *raw.Price, Timestamp: ts, Source: raw.Source, Cached: true}, true
}

// writeCache replaces the cache file atomically so readers never observe a
// partial write.
func (s *Service) writeCache(q Quote) error {
	if s.cfg.CacheFile == "" {
		return nil
	}
	dir := filepath.Dir(s.cfg.CacheFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	b, err := json.MarshalIndent(map[string]any{
		"price":     q.Price,
		"timestamp": q.Timestamp.Format(time.RFC3339Nano),
		"source":    q.Source,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.cfg.CacheFile)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.cfg.CacheFile); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	logx.Debug().Float64("price", q.Price).Str("source", q.Source).Msg("Cached price")
	return nil
}

// Format renders q for the user.
func Format(q Quote) string {
	text := fmt.Sprintf("Current electricity price in France: €%.4f/kWh\nSource: %s\nLast updated: %s",
		q.Price, sourceLabel(q), q.Timestamp.Format("2006-01-02 15:04"))
	if q.Source == SourceFallback && !q.Cached {
		text += "\nNote: This is an estimated average price as real-time data is unavailable."
	}
	return text
}

func sourceLabel(q Quote) string {
	if q.Source == SourceFallback && !q.Cached {
		return "fallback (average price)"
	}
	return q.Source
}
