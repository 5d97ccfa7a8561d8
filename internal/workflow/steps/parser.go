package steps

import (
	"context"
	"strings"

	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const nodeParser = "parser"

// Parser derives the routing flags from the inbound message and clears every
// per-turn field.
func Parser() Func {
	return guard(nodeParser, parserFallback, func(_ context.Context, s state.State) state.Patch {
		hasAttachment := len(s.AttachmentURLs) > 0
		isQuery := strings.TrimSpace(s.BodyText) != "" && !hasAttachment

		ev := stepLog(logx.Info(), nodeParser, s).Str("sender_id", s.SenderID)
		switch {
		case hasAttachment:
			ev.Int("attachments", len(s.AttachmentURLs)).Msg("Message contains attachments")
		case isQuery:
			ev.Msg("Message is a text-only query")
		default:
			ev.Msg("Message contains no media and no text")
		}

		p := state.ResetTransient()
		p.HasAttachment = state.Bool(hasAttachment)
		p.IsQuery = state.Bool(isQuery)
		return p
	})
}

func parserFallback(state.State) state.Patch {
	p := state.ResetTransient()
	p.HasAttachment = state.Bool(false)
	p.IsQuery = state.Bool(false)
	return p
}
