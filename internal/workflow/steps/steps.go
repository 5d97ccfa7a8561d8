// Package steps implements the workflow nodes. Every step reads the
// accumulated state and returns a patch; none of them returns an error.
// External failures are logged and turned into the step's safe result.
package steps

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/energy-monitor/server/internal/retry"
	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// Func is a workflow step.
type Func func(ctx context.Context, s state.State) state.Patch

// Fetcher downloads an attachment.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Vision answers questions about an image.
type Vision interface {
	Classify(ctx context.Context, image []byte, prompt string) (string, error)
	Extract(ctx context.Context, image []byte) (*float64, error)
}

// ReadingWriter is the write side of the reading store.
type ReadingWriter interface {
	TableExists(ctx context.Context) (bool, error)
	CreateTable(ctx context.Context) error
	UpsertByDate(ctx context.Context, date time.Time, measurement float64, source string) error
}

// Agent answers a conversation and returns the messages it produced, in
// order, excluding the history it was given.
type Agent interface {
	Invoke(ctx context.Context, history []*schema.Message) ([]*schema.Message, error)
}

// Sender delivers a reply.
type Sender interface {
	Send(ctx context.Context, to, text, mediaURL string) (string, error)
}

// guard recovers a panicking step and substitutes its safe result.
func guard(node string, fallback func(state.State) state.Patch, fn Func) Func {
	return func(ctx context.Context, s state.State) (p state.Patch) {
		defer func() {
			if r := recover(); r != nil {
				logx.Error().
					Str("request_id", s.RequestID).
					Str("node", node).
					Str("panic", fmt.Sprint(r)).
					Str("stack", string(debug.Stack())).
					Msg("Unexpected error in step, continuing with safe result")
				p = fallback(s)
			}
		}()
		return fn(ctx, s)
	}
}

func stepLog(ev *zerolog.Event, node string, s state.State) *zerolog.Event {
	return ev.Str("request_id", s.RequestID).Str("node", node)
}

func orDefault(p, def retry.Policy) retry.Policy {
	if p.Name == "" {
		return def
	}
	return p
}
