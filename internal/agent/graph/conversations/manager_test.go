package conversations

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-monitor/server/internal/agent/model"
	"github.com/energy-monitor/server/internal/agent/repo"
)

type failingRepo struct {
	model.ConversationRepository
}

func (failingRepo) LoadHistory(context.Context, string) (*model.ConversationHistory, error) {
	return nil, errors.New("redis down")
}

func (failingRepo) AppendMessages(context.Context, string, ...*schema.Message) error {
	return errors.New("redis down")
}

func TestLoadTrimsToUserTurn(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemoryConversationRepository(0)
	require.NoError(t, r.AppendMessages(ctx, "s",
		schema.UserMessage("q1"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1"}}),
		schema.ToolMessage("result", "c1"),
		schema.AssistantMessage("a1", nil),
		schema.UserMessage("q2"),
		schema.AssistantMessage("a2", nil),
	))

	mm := NewMessagesManager(r, model.ConversationConfig{MaxMessages: 4})
	got := mm.Load(ctx, "s")

	require.Len(t, got, 2)
	assert.Equal(t, "q2", got[0].Content)
	assert.Equal(t, "a2", got[1].Content)
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	mm := NewMessagesManager(repo.NewMemoryConversationRepository(0), model.ConversationConfig{MaxMessages: 20})

	mm.Save(ctx, "s", []*schema.Message{schema.UserMessage("hello"), schema.AssistantMessage("hi", nil)})
	assert.Len(t, mm.Load(ctx, "s"), 2)
	assert.Empty(t, mm.Load(ctx, "other"))
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	mm := NewMessagesManager(failingRepo{}, model.ConversationConfig{MaxMessages: 20})

	assert.Nil(t, mm.Load(context.Background(), "s"))
	assert.NotPanics(t, func() { mm.Save(context.Background(), "s", []*schema.Message{schema.UserMessage("x")}) })

	var nilManager *MessagesManager
	assert.Nil(t, nilManager.Load(context.Background(), "s"))
}

func TestCountAndReset(t *testing.T) {
	ctx := context.Background()
	mm := NewMessagesManager(repo.NewMemoryConversationRepository(0), model.ConversationConfig{MaxMessages: 20})

	mm.Save(ctx, "s", []*schema.Message{schema.UserMessage("hello"), schema.AssistantMessage("hi", nil)})
	n, err := mm.Count(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, mm.Reset(ctx, "s"))
	n, err = mm.Count(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mm.Load(ctx, "s"))

	var nilManager *MessagesManager
	assert.NoError(t, nilManager.Reset(ctx, "s"))
}
