package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/chart"
	"github.com/energy-monitor/server/internal/core"
	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/store"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	defaultDays = 30
	minDays     = 1
	maxDays     = 365
)

type plotTool struct {
	readings ReadingReader
	charts   ChartRenderer
	now      func() time.Time
}

func (t *plotTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolGeneratePlot,
		Desc: "Generate a line chart of energy readings over the last N days, dates on the x-axis and kWh on the y-axis. Returns the path of the chart image. Use this when the user wants to see trends or a visualization.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"days": {
				Type: schema.Integer,
				Desc: "Number of days to include in the plot (default 30, max 365)",
			},
		}),
	}, nil
}

// InvokableRun returns the chart path, or an "Error: ..." sentence the model
// can relay when there is not enough data.
func (t *plotTool) InvokableRun(ctx context.Context, arguments string, _ ...tool.Option) (string, error) {
	days := clampInt(intArg(arguments, "days", defaultDays), minDays, maxDays)
	requestID := core.RequestID(ctx)

	if t.readings == nil || t.charts == nil {
		return "Error: Unable to connect to database to generate plot.", nil
	}
	from := store.Day(t.now()).AddDate(0, 0, -days)
	rows, err := t.readings.QueryRange(ctx, from)
	if err != nil {
		if errx.IsNotFound(err) {
			logx.Warn().Err(err).Str("tool", ToolGeneratePlot).Msg("Readings table not found")
			return "Error: No readings found. The energy readings table doesn't exist yet.", nil
		}
		logx.Error().Err(err).Str("tool", ToolGeneratePlot).Msg("Reading query failed")
		return "Error: Unable to retrieve readings from database.", nil
	}

	switch len(rows) {
	case 0:
		return fmt.Sprintf("Error: No readings found in the last %d days. Cannot generate plot.", days), nil
	case 1:
		return fmt.Sprintf("Error: Only 1 reading found in the last %d days. Need at least 2 readings to generate a plot.", days), nil
	}

	points := make([]chart.Point, len(rows))
	for i, r := range rows {
		points[i] = chart.Point{Date: r.Date, Value: r.Measurement}
	}
	path, err := t.charts.Render(requestID, days, points)
	if err != nil {
		logx.Error().Err(err).Str("request_id", requestID).Str("tool", ToolGeneratePlot).Msg("Chart rendering failed")
		return "Error: An unexpected error occurred while generating the plot.", nil
	}

	logx.Info().Str("request_id", requestID).Str("path", path).Int("points", len(points)).Msg("Chart generated")
	return path, nil
}

var _ tool.InvokableTool = (*plotTool)(nil)
