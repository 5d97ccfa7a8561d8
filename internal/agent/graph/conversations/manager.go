package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/agent/model"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// MessagesManager loads a sender's conversation before a request and saves
// the turn after it. Storage failures never fail the request.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	maxMessages      int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		maxMessages:      config.MaxMessages,
	}
}

// Load returns the recent conversation, oldest first. It starts on a user
// message so the model never sees a dangling tool result.
func (cm *MessagesManager) Load(ctx context.Context, conversationID string) []*schema.Message {
	if cm == nil || cm.conversationRepo == nil {
		return nil
	}
	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		logx.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to load conversation, starting fresh")
		return nil
	}
	if history.Len() == 0 {
		return nil
	}
	return trimTail(history.Messages, cm.maxMessages)
}

// Save appends the messages of one turn.
func (cm *MessagesManager) Save(ctx context.Context, conversationID string, messages []*schema.Message) {
	if cm == nil || cm.conversationRepo == nil || len(messages) == 0 {
		return
	}
	if err := cm.conversationRepo.AppendMessages(ctx, conversationID, messages...); err != nil {
		logx.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to save conversation")
		return
	}
	logx.Debug().Str("conversation_id", conversationID).Int("messages", len(messages)).Msg("Conversation saved")
}

// Count returns the number of stored messages for conversationID.
func (cm *MessagesManager) Count(ctx context.Context, conversationID string) (int, error) {
	if cm == nil || cm.conversationRepo == nil {
		return 0, nil
	}
	return cm.conversationRepo.GetMessageCount(ctx, conversationID)
}

// Reset forgets the conversation so the next message starts fresh.
func (cm *MessagesManager) Reset(ctx context.Context, conversationID string) error {
	if cm == nil || cm.conversationRepo == nil {
		return nil
	}
	if err := cm.conversationRepo.ClearHistory(ctx, conversationID); err != nil {
		return err
	}
	logx.Info().Str("conversation_id", conversationID).Msg("Conversation cleared")
	return nil
}

func trimTail(messages []*schema.Message, maxMessages int) []*schema.Message {
	source := messages
	if maxMessages > 0 && len(source) > maxMessages {
		source = source[len(source)-maxMessages:]
	}
	for len(source) > 0 && (source[0] == nil || source[0].Role != schema.User) {
		source = source[1:]
	}
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
