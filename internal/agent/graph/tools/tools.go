package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/chart"
	"github.com/energy-monitor/server/internal/price"
	"github.com/energy-monitor/server/internal/store"
)

const (
	ToolQueryReadings       = "query_readings"
	ToolGetElectricityPrice = "get_electricity_price"
	ToolGeneratePlot        = "generate_plot"
)

// ReadingReader is the read side of the reading store.
type ReadingReader interface {
	QueryLatest(ctx context.Context, n int) ([]store.Reading, error)
	QueryRange(ctx context.Context, from time.Time) ([]store.Reading, error)
}

// PriceQuoter returns the current unit price. It never fails.
type PriceQuoter interface {
	Current(ctx context.Context) price.Quote
}

// ChartRenderer draws reading history to an image file.
type ChartRenderer interface {
	Render(requestID string, days int, points []chart.Point) (string, error)
}

// Deps are the collaborators behind the query tools.
type Deps struct {
	Readings ReadingReader
	Prices   PriceQuoter
	Charts   ChartRenderer
	// Now anchors the chart window. Defaults to time.Now.
	Now func() time.Time
}

// GetQueryTools returns the tools bound to the query agent.
func GetQueryTools(d Deps) []tool.BaseTool {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return []tool.BaseTool{
		&queryReadingsTool{readings: d.Readings},
		&priceTool{prices: d.Prices},
		&plotTool{readings: d.Readings, charts: d.Charts, now: now},
	}
}

// GetToolInfos collects the tool schemas for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SanitizeArguments coerces model-supplied arguments into the shapes the
// tools expect. Numeric strings become numbers and values are clamped.
// It never fails; unparsable input is passed through unchanged.
func SanitizeArguments(_ context.Context, name, arguments string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		return arguments, nil
	}

	switch name {
	case ToolQueryReadings:
		sanitizeInt(m, "num_readings", minReadings, maxReadings)
	case ToolGeneratePlot:
		sanitizeInt(m, "days", minDays, maxDays)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}

func sanitizeInt(m map[string]any, key string, lo, hi int) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case float64:
		// JSON numbers decode as float64
		m[key] = clampInt(int(vv), lo, hi)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
			m[key] = clampInt(n, lo, hi)
		} else {
			delete(m, key)
		}
	default:
		delete(m, key)
	}
}

// clampInt returns v limited to [lo, hi].
func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// intArg reads an integer argument, falling back to def when absent or
// malformed.
func intArg(arguments, key string, def int) int {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
