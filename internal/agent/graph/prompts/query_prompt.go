package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/agent/graph/tools"
)

//go:embed template/query_prompt.txt
var querySystemPrompt string

// RenderQuerySystem renders the query agent's system prompt and triggers
// prompt callbacks.
func RenderQuerySystem(ctx context.Context) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(querySystemPrompt),
	)
	vars := map[string]any{
		"ReadingsTool": tools.ToolQueryReadings,
		"PriceTool":    tools.ToolGetElectricityPrice,
		"PlotTool":     tools.ToolGeneratePlot,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("query prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("query prompt render: empty result")
	}
	return msgs[0].Content, nil
}
