package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/price"
)

type priceTool struct {
	prices PriceQuoter
}

func (t *priceTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolGetElectricityPrice,
		Desc: "Get the current electricity price in France per kWh, with its source and last update time. Use this to estimate costs.",
	}, nil
}

func (t *priceTool) InvokableRun(ctx context.Context, _ string, _ ...tool.Option) (string, error) {
	if t.prices == nil {
		return "Error: Electricity price is unavailable.", nil
	}
	return price.Format(t.prices.Current(ctx)), nil
}

var _ tool.InvokableTool = (*priceTool)(nil)
