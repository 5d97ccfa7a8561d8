// Package llm creates the process-wide Gemini client shared by the vision
// calls and the query agent's chat model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	errx "github.com/energy-monitor/server/internal/core/error"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// Config holds Gemini credentials.
type Config struct {
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
}

// NewClient returns a Gemini API client. The returned client is safe for
// concurrent use.
func NewClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// WrapError classifies a Gemini error by its HTTP status so retry policies
// can tell rate limits and outages from bad requests.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return errx.WrapUpstream(err, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return errx.WrapUpstream(err, apiErrPtr.Code)
	}
	return errx.WrapUpstream(err, 0)
}
