// Package vision asks a multimodal Gemini model about meter photos.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/llm"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	// ExtractPrompt asks for the displayed reading.
	ExtractPrompt = "Extract the current reading/measurement value from this energy meter."

	imageMIME = "image/jpeg"
)

// Config selects the vision model.
type Config struct {
	Model       string  `envconfig:"VISION_MODEL" default:"gemini-2.5-flash-lite"`
	Temperature float32 `envconfig:"VISION_TEMPERATURE" default:"0.1"`
}

// Generator is the subset of the genai Models service used here.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements classification and structured extraction.
type Client struct {
	gen Generator
	cfg Config
}

// New returns a Client. gen is usually genai.Client.Models.
func New(gen Generator, cfg Config) *Client {
	return &Client{gen: gen, cfg: cfg}
}

// Classify sends image with prompt and returns the model's text.
func (c *Client) Classify(ctx context.Context, image []byte, prompt string) (string, error) {
	resp, err := c.gen.GenerateContent(ctx, c.cfg.Model, imageContent(image, prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.cfg.Temperature),
	})
	if err != nil {
		return "", llm.WrapError(err)
	}
	text := resp.Text()
	logx.Debug().Str("model", c.cfg.Model).Str("response", text).Msg("Vision classification response")
	return text, nil
}

// reading is the structured extraction payload.
type reading struct {
	Measurement *float64 `json:"measurement"`
}

var readingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"measurement": {
			Type:        genai.TypeNumber,
			Description: "The current reading/measurement value from the energy meter",
			Nullable:    genai.Ptr(true),
		},
	},
}

// Extract returns the reading shown on the meter, or nil when the model
// found none.
func (c *Client) Extract(ctx context.Context, image []byte) (*float64, error) {
	resp, err := c.gen.GenerateContent(ctx, c.cfg.Model, imageContent(image, ExtractPrompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   readingSchema,
	})
	if err != nil {
		return nil, llm.WrapError(err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, nil
	}
	var out reading
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errx.Validation(fmt.Errorf("decode extraction %q: %w", raw, err), "malformed extraction response")
	}
	return out.Measurement, nil
}

func imageContent(image []byte, prompt string) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, imageMIME),
		}, genai.RoleUser),
	}
}
