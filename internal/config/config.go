// Package config binds the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/energy-monitor/server/internal/agent/model"
	"github.com/energy-monitor/server/internal/core"
	"github.com/energy-monitor/server/internal/delivery"
	"github.com/energy-monitor/server/internal/llm"
	"github.com/energy-monitor/server/internal/price"
	"github.com/energy-monitor/server/internal/store"
	"github.com/energy-monitor/server/internal/vision"
	logx "github.com/energy-monitor/server/pkg/logger"
	pkgredis "github.com/energy-monitor/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// HTTP
	HTTPAddr        string `envconfig:"HTTP_ADDR" default:":8000"`
	VerifySignature bool   `envconfig:"TWILIO_VERIFY_SIGNATURE" default:"true"`
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"true"`

	// Files
	AssetDir string `envconfig:"ASSET_DIR"`
	ChartDir string `envconfig:"CHART_DIR" default:"static/plots"`

	// Infrastructure
	Redis pkgredis.Config
	Store store.Config

	// Providers
	LLM      llm.Config
	Vision   vision.Config
	Delivery delivery.Config
	Price    price.Config

	// Agent configs
	Agent        model.AgentConfig
	Conversation model.ConversationConfig
}

// Load reads envFile when it exists and binds the environment. A missing
// file is not an error.
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			logx.Warn().Err(err).Str("file", envFile).Msg("could not load env file")
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if _, err := c.ConversationTTL(); err != nil {
		return err
	}
	if c.Conversation.MaxMessages <= 0 {
		return fmt.Errorf("CONVERSATION_MAX_MESSAGES must be positive, got %d", c.Conversation.MaxMessages)
	}
	if c.Agent.MaxToolCalls <= 0 || c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("AGENT_TOOL_MAX_CALLS and AGENT_MAX_STEPS must be positive")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}

// ConversationTTL parses CONVERSATION_TTL.
func (c *AppConfig) ConversationTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Conversation.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", c.Conversation.TTL, err)
	}
	return ttl, nil
}

// AssetDirectory returns ASSET_DIR, or the system temp dir when unset.
func (c *AppConfig) AssetDirectory() string {
	if c.AssetDir != "" {
		return c.AssetDir
	}
	return filepath.Join(os.TempDir(), "energy-monitor")
}

// LoggerOpts returns the logger options for this config.
func (c *AppConfig) LoggerOpts() logx.LoggerOpts {
	return logx.LoggerOpts{Environment: c.Environment, Level: c.LogLevel}
}
