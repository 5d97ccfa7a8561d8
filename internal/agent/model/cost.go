package model

import (
	"strconv"

	"github.com/cloudwego/eino/schema"
)

// Pricing is the USD price per 1M tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// Gemini text pricing for the models the agent and vision steps use.
var geminiPricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
}

// PricingFor returns the pricing of modelName. Unknown models are free.
func PricingFor(modelName string) Pricing {
	return geminiPricing[modelName]
}

// Cost is a USD amount split by direction.
type Cost struct {
	InputUSD  float64
	OutputUSD float64
}

// TotalUSD is the sum of both directions.
func (c Cost) TotalUSD() float64 {
	return c.InputUSD + c.OutputUSD
}

// Add returns c + o.
func (c Cost) Add(o Cost) Cost {
	return Cost{InputUSD: c.InputUSD + o.InputUSD, OutputUSD: c.OutputUSD + o.OutputUSD}
}

// UsageCost prices a model call. A nil usage costs nothing.
func UsageCost(modelName string, usage *schema.TokenUsage) Cost {
	if usage == nil {
		return Cost{}
	}
	p := PricingFor(modelName)
	return Cost{
		InputUSD:  p.InputPerM * float64(usage.PromptTokens) / 1e6,
		OutputUSD: p.OutputPerM * float64(usage.CompletionTokens) / 1e6,
	}
}

func toolCallID(seq int) string {
	return "call_" + strconv.Itoa(seq)
}
