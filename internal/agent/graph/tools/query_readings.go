package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/core"
	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/store"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	defaultReadings = 10
	minReadings     = 1
	maxReadings     = 100
)

type queryReadingsTool struct {
	readings ReadingReader
}

func (t *queryReadingsTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolQueryReadings,
		Desc: "Retrieve the latest N energy meter readings, most recent first. Use this when the user asks about recent consumption, wants to see their reading history, or needs data for analysis.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"num_readings": {
				Type: schema.Integer,
				Desc: "Number of readings to retrieve (default 10, max 100)",
			},
		}),
	}, nil
}

func (t *queryReadingsTool) InvokableRun(ctx context.Context, arguments string, _ ...tool.Option) (string, error) {
	n := clampInt(intArg(arguments, "num_readings", defaultReadings), minReadings, maxReadings)
	requestID := core.RequestID(ctx)

	if t.readings == nil {
		logx.Error().Str("request_id", requestID).Str("tool", ToolQueryReadings).Msg("Readings repository not configured")
		return "Error: Unable to connect to database. Please try again later.", nil
	}
	rows, err := t.readings.QueryLatest(ctx, n)
	if err != nil {
		if errx.IsNotFound(err) {
			logx.Warn().Err(err).Str("request_id", requestID).Str("tool", ToolQueryReadings).Msg("Readings table not found")
			return "No readings found. The energy readings table doesn't exist yet. Please submit your first reading.", nil
		}
		logx.Error().Err(err).Str("request_id", requestID).Str("tool", ToolQueryReadings).Msg("Reading query failed")
		return "Error: Unable to retrieve readings from database.", nil
	}
	if len(rows) == 0 {
		logx.Info().Str("request_id", requestID).Str("tool", ToolQueryReadings).Msg("No readings found")
		return "No readings found. You haven't submitted any energy readings yet.", nil
	}

	logx.Info().Str("request_id", requestID).Str("tool", ToolQueryReadings).Int("requested", n).Int("found", len(rows)).Msg("Readings retrieved")
	return FormatReadings(rows), nil
}

// FormatReadings renders rows in the order given.
func FormatReadings(rows []store.Reading) string {
	var b strings.Builder
	suffix := "s"
	if len(rows) == 1 {
		suffix = ""
	}
	fmt.Fprintf(&b, "Latest %d energy reading%s:", len(rows), suffix)
	for _, r := range rows {
		fmt.Fprintf(&b, "\n%s: %.2f kWh", r.Date.Format(store.DateLayout), r.Measurement)
	}
	return b.String()
}

var _ tool.InvokableTool = (*queryReadingsTool)(nil)
