package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/energy-monitor/server/internal/agent/graph/conversations"
	"github.com/energy-monitor/server/internal/agent/repo"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Clear bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <sender-id>",
		Short: "Show or clear a sender's stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled() {
				return fmt.Errorf("REDIS_URL is not set, conversations are only kept by a running server")
			}
			ttl, err := cfg.ConversationTTL()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rdb, err := cfg.Redis.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialise Redis client: %w", err)
			}
			defer rdb.Close()

			mm := conversations.NewMessagesManager(
				repo.NewRedisConversationRepository(rdb, ttl, cfg.Conversation.MaxMessages),
				cfg.Conversation,
			)
			return history(ctx, cmd, mm, args[0], opts.Clear)
		},
	}

	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "delete the conversation")

	return cmd
}

func history(ctx context.Context, cmd *cobra.Command, mm *conversations.MessagesManager, sender string, reset bool) error {
	if reset {
		if err := mm.Reset(ctx, sender); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared conversation %s\n", sender)
		return nil
	}

	n, err := mm.Count(ctx, sender)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d stored message(s)\n", sender, n)
	for _, m := range mm.Load(ctx, sender) {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", m.Role, m.Content)
	}
	return nil
}
