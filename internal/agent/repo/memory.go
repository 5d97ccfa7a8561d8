package repo

import (
	"context"
	"slices"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/agent/model"
)

// MemoryConversationRepository is an in-process repository used when Redis
// is not configured. History is lost on restart and never expires.
type MemoryConversationRepository struct {
	mu          sync.Mutex
	maxMessages int
	data        map[string][]*schema.Message
}

func NewMemoryConversationRepository(maxMessages int) *MemoryConversationRepository {
	return &MemoryConversationRepository{maxMessages: maxMessages, data: map[string][]*schema.Message{}}
}

func (r *MemoryConversationRepository) AppendMessages(_ context.Context, conversationID string, messages ...*schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append(r.data[conversationID], slices.DeleteFunc(slices.Clone(messages), func(m *schema.Message) bool { return m == nil })...)
	if r.maxMessages > 0 && len(msgs) > r.maxMessages {
		msgs = slices.Clone(msgs[len(msgs)-r.maxMessages:])
	}
	r.data[conversationID] = msgs
	return nil
}

func (r *MemoryConversationRepository) LoadHistory(_ context.Context, conversationID string) (*model.ConversationHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &model.ConversationHistory{ConversationID: conversationID, Messages: slices.Clone(r.data[conversationID])}, nil
}

func (r *MemoryConversationRepository) ClearHistory(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, conversationID)
	return nil
}

func (r *MemoryConversationRepository) GetMessageCount(_ context.Context, conversationID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data[conversationID]), nil
}

var _ model.ConversationRepository = (*MemoryConversationRepository)(nil)
