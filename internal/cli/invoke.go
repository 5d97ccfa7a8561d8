package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/energy-monitor/server/internal/app"
	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/workflow/state"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Text  string
	Image string
	From  string
	Send  bool
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run one message through the workflow without HTTP",
		Long: `Run one synthetic message through the workflow and print the final state
as JSON. The reply is printed to stderr instead of being delivered unless
--send is given.

Example:
  energy-monitor invoke --image ./meter.jpg
  energy-monitor invoke --text "How much did I use this week?"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "message body")
	cmd.Flags().StringVar(&opts.Image, "image", "", "local image attached to the message")
	cmd.Flags().StringVar(&opts.From, "from", "cli", "sender id, also the conversation id")
	cmd.Flags().BoolVar(&opts.Send, "send", false, "deliver the reply through the messaging provider")

	return cmd
}

func invoke(cmd *cobra.Command, opts *InvokeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	buildOpts := []app.Option{app.WithFetcher(fileFetcher{})}
	if !opts.Send {
		buildOpts = append(buildOpts, app.WithSender(writerSender{w: cmd.ErrOrStderr()}))
	}

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, buildOpts...)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	var attachments []string
	if opts.Image != "" {
		attachments = []string{opts.Image}
	}

	history := a.History.Load(ctx, opts.From)
	initial, err := state.New(state.Input{
		SenderID:       opts.From,
		BodyText:       opts.Text,
		AttachmentURLs: attachments,
		History:        history,
	})
	if err != nil {
		return err
	}

	final, err := a.Engine.Run(ctx, initial)
	if err != nil {
		return err
	}
	if len(final.ConversationHistory) > len(history) {
		a.History.Save(ctx, opts.From, final.ConversationHistory[len(history):])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(final)
}

// fileFetcher reads attachments from the local filesystem. A file:// prefix
// is accepted.
type fileFetcher struct{}

func (fileFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errx.New(err, http.StatusNotFound, "attachment not found")
		}
		return nil, fmt.Errorf("cannot read attachment: %w", err)
	}
	return data, nil
}

// writerSender prints replies instead of delivering them.
type writerSender struct {
	w io.Writer
}

func (s writerSender) Send(_ context.Context, to, text, mediaURL string) (string, error) {
	if mediaURL != "" {
		_, err := fmt.Fprintf(s.w, "reply to %s: %s\nmedia: %s\n", to, text, mediaURL)
		return "local", err
	}
	_, err := fmt.Fprintf(s.w, "reply to %s: %s\n", to, text)
	return "local", err
}
