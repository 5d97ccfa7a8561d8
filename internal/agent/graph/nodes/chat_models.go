package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/energy-monitor/server/internal/agent/model"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// ToolBindingChatModel is a chat model that accepts tool schemas.
// *gemini.ChatModel implements it.
type ToolBindingChatModel interface {
	einomodel.BaseChatModel
	BindTools(tools []*schema.ToolInfo) error
}

// NewChatModel creates the query agent's Gemini chat model on a shared client.
func NewChatModel(ctx context.Context, client *genai.Client, cfg model.AgentConfig) (*gemini.ChatModel, error) {
	if client == nil {
		return nil, fmt.Errorf("gemini client is nil")
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}
	return chatModel, nil
}

// BindTools binds tools to the chat model.
func BindTools(cm ToolBindingChatModel, tools []*schema.ToolInfo) error {
	if err := cm.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to agent model")
	return nil
}
