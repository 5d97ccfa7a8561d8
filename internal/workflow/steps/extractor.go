package steps

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/retry"
	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const nodeExtractor = "extractor"

// TimestampLayout is the ISO-8601 form of extracted_timestamp.
const TimestampLayout = "2006-01-02T15:04:05"

// ExtractorConfig wires the extractor.
type ExtractorConfig struct {
	Vision Vision
	// Retry governs the extraction call. Defaults to retry.Extraction.
	Retry retry.Policy
	// Now stamps the reading. Defaults to time.Now.
	Now func() time.Time
}

// Extractor reads the meter value from the downloaded asset. The reading is
// dated now; the image is not consulted for a date. The asset is deleted on
// every exit path and local_asset_path is cleared.
func Extractor(cfg ExtractorConfig) Func {
	policy := orDefault(cfg.Retry, retry.Extraction)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return guard(nodeExtractor, extractorFallback, func(ctx context.Context, s state.State) state.Patch {
		path, ok := s.Asset()
		if !ok {
			stepLog(logx.Warn(), nodeExtractor, s).Msg("No asset path found in state")
			return extractorFallback(s)
		}
		defer removeAsset(s, nodeExtractor, path)

		value, err := extract(ctx, cfg.Vision, policy, path)
		if err != nil {
			stepLog(logx.Error(), nodeExtractor, s).Err(err).
				Msg("Reading extraction failed, continuing without it")
			return extractorFallback(s)
		}

		ts := now().Format(TimestampLayout)
		stepLog(logx.Info(), nodeExtractor, s).Float64("measurement", value).Str("timestamp", ts).
			Msg("Extracted measurement")
		return state.Patch{
			ExtractedValue:     state.Some(value),
			ExtractedTimestamp: state.Some(ts),
			LocalAssetPath:     state.Null[string](),
		}
	})
}

func extract(ctx context.Context, v Vision, policy retry.Policy, path string) (float64, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errx.ErrNoAsset, err)
	}

	got, err := retry.Do(ctx, policy, func(ctx context.Context) (*float64, error) {
		return v.Extract(ctx, image)
	})
	if err != nil {
		return 0, fmt.Errorf("vision extract: %w", err)
	}
	if err := ValidateMeasurement(got); err != nil {
		return 0, err
	}
	return *got, nil
}

// ValidateMeasurement accepts finite, non-negative values.
func ValidateMeasurement(v *float64) error {
	switch {
	case v == nil:
		return fmt.Errorf("%w: no measurement extracted", errx.ErrInvalidMeasurement)
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		return fmt.Errorf("%w: %v is not finite", errx.ErrInvalidMeasurement, *v)
	case *v < 0:
		return fmt.Errorf("%w: %v is negative", errx.ErrInvalidMeasurement, *v)
	}
	return nil
}

func extractorFallback(state.State) state.Patch {
	return state.Patch{
		ExtractedValue:     state.Null[float64](),
		ExtractedTimestamp: state.Null[string](),
		LocalAssetPath:     state.Null[string](),
	}
}
