package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ConversationRepository persists the message history of each sender. The
// conversation id is the sender id as received from the messaging provider.
type ConversationRepository interface {
	// AppendMessages adds one turn, oldest first. Implementations cap the
	// stored length.
	AppendMessages(ctx context.Context, conversationID string, messages ...*schema.Message) error

	// LoadHistory returns the stored turns. An unknown sender has an empty
	// history, not an error.
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	ClearHistory(ctx context.Context, conversationID string) error

	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ConversationHistory is one sender's stored messages.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}

// Len is the number of stored messages. A nil history is empty.
func (h *ConversationHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Messages)
}
