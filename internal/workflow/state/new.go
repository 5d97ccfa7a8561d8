package state

import (
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	errx "github.com/energy-monitor/server/internal/core/error"
)

// ErrMissingSender rejects inbound messages without a sender.
var ErrMissingSender = errors.New("sender id is required")

// Input is the caller-supplied part of a new State.
type Input struct {
	RequestID      string
	SenderID       string
	BodyText       string
	AttachmentURLs []string
	ReplyBaseURL   string
	// History is the conversation so far, oldest first.
	History []*schema.Message
}

// New builds the initial State for one inbound message. A missing request
// id is replaced by a random one; the body, when present, is appended to the
// history as the user's turn.
func New(in Input) (State, error) {
	sender := strings.TrimSpace(in.SenderID)
	if sender == "" {
		return State{}, errx.Validation(ErrMissingSender, "invalid inbound message")
	}

	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	urls := make([]string, 0, len(in.AttachmentURLs))
	for _, u := range in.AttachmentURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	history := AppendHistory(in.History)
	if in.BodyText != "" {
		history = AppendHistory(history, schema.UserMessage(in.BodyText))
	}

	return State{
		RequestID:           requestID,
		SenderID:            sender,
		BodyText:            in.BodyText,
		AttachmentURLs:      urls,
		ReplyBaseURL:        strings.TrimRight(in.ReplyBaseURL, "/"),
		ConversationHistory: history,
	}, nil
}
