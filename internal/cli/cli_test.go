package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-monitor/server/internal/agent/graph/conversations"
	"github.com/energy-monitor/server/internal/agent/model"
	"github.com/energy-monitor/server/internal/agent/repo"
	errx "github.com/energy-monitor/server/internal/core/error"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "energy-monitor", cmd.Use)

	for _, name := range []string{"serve", "invoke", "history"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)
}

func TestInvokeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	invokeCmd, _, err := cmd.Find([]string{"invoke"})
	require.NoError(t, err)

	for flag, def := range map[string]string{"text": "", "image": "", "from": "cli", "send": "false"} {
		f := invokeCmd.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meter.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

	data, err := fileFetcher{}.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	data, err = fileFetcher{}.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = fileFetcher{}.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))
}

func TestWriterSender(t *testing.T) {
	var buf bytes.Buffer
	s := writerSender{w: &buf}

	id, err := s.Send(context.Background(), "cli", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "local", id)

	_, err = s.Send(context.Background(), "cli", "chart", "http://host/static/plots/p.png")
	require.NoError(t, err)
	assert.Equal(t, "reply to cli: hello\nreply to cli: chart\nmedia: http://host/static/plots/p.png\n", buf.String())
}

func TestHistoryShowAndClear(t *testing.T) {
	ctx := context.Background()
	mm := conversations.NewMessagesManager(repo.NewMemoryConversationRepository(0), model.ConversationConfig{MaxMessages: 20})
	mm.Save(ctx, "whatsapp:+1", []*schema.Message{schema.UserMessage("hello"), schema.AssistantMessage("hi", nil)})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, history(ctx, cmd, mm, "whatsapp:+1", false))
	assert.Equal(t, "whatsapp:+1: 2 stored message(s)\n[user] hello\n[assistant] hi\n", out.String())

	out.Reset()
	require.NoError(t, history(ctx, cmd, mm, "whatsapp:+1", true))
	assert.Equal(t, "cleared conversation whatsapp:+1\n", out.String())
	assert.Empty(t, mm.Load(ctx, "whatsapp:+1"))
}
