package nodes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/agent/graph/prompts"
	"github.com/energy-monitor/server/internal/agent/model"
	"github.com/energy-monitor/server/internal/core"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	NodeInputConverter = "InputConverter"
	NodeChatModel      = "ChatModel"
	NodeToolExecutor   = "ToolExecutor"
	NodeCollector      = "Collector"
)

// NewInputConverterPreHandler resets the per-run counters.
func NewInputConverterPreHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, s *model.AppState) ([]*schema.Message, error) {
		s.Reset(core.RequestID(ctx))
		return in, nil
	}
}

// NewInputConverterNode prepends the system prompt to the conversation.
func NewInputConverterNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, history []*schema.Message) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderQuerySystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render query system prompt: %w", err)
		}

		messages := make([]*schema.Message, 0, len(history)+1)
		messages = append(messages, schema.SystemMessage(systemPrompt))
		for _, m := range history {
			if m != nil && m.Role != schema.System {
				messages = append(messages, m)
			}
		}
		return messages, nil
	})
}

// NewChatModelPreHandler grows the model context with the node input (the
// initial conversation or the latest tool results) and injects a wrap-up
// notice once the tool budget is spent.
func NewChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Tool results must carry the id of the call they answer
		for _, msg := range in {
			if msg != nil && msg.Role == schema.Tool && strings.TrimSpace(msg.ToolCallID) == "" {
				if id := lastToolCallID(state.History); id != "" {
					msg.ToolCallID = id
				}
			}
		}

		state.History = append(state.History, in...)

		if state.MarkToolLimit(maxToolCalls) {
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Answer the user now using the information you've already gathered, "+
						"and mention anything you could not look up.",
					model.ToolBudget(maxToolCalls),
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return slices.Clone(state.History), nil
	}
}

func lastToolCallID(history []*schema.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
			continue
		}
		return strings.TrimSpace(msg.ToolCalls[0].ID)
	}
	return ""
}

// NewChatModelPostHandler records the model output and logs its usage cost.
func NewChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			cost := state.AddUsage(modelName, usage)
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost_total_usd"] = state.Cost.TotalUSD()
			logx.Debug().
				Str("request_id", state.RequestID).
				Str("node", NodeChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("input_cost_usd", cost.InputUSD).
				Float64("output_cost_usd", cost.OutputUSD).
				Float64("total_cost_usd", state.Cost.TotalUSD()).
				Msg("LLM usage")
		}

		// Some providers omit tool call ids
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				out.ToolCalls[i].ID = state.NextToolCallID()
			}
		}

		state.History = append(state.History, out)
		state.Produced = append(state.Produced, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Str("request_id", state.RequestID).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Str("request_id", state.RequestID).Msg("AI response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tools while the model asks for
// them and the budget allows.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to collector")
			return NodeCollector, nil
		}
		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return NodeCollector, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := state.RecordToolRound(maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("request_id", state.RequestID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", model.ToolBudget(maxToolCalls)).
				Str("request_id", state.RequestID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewToolExecutorPostHandler records tool results as produced messages.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.Produced = append(state.Produced, out...)
		return out, nil
	}
}

// NewCollectorNode returns every message produced during the run. A final
// tool request that the budget stopped from executing is dropped so the
// returned transcript never ends on an unanswered call.
func NewCollectorNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var produced []*schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			produced = TrimUnansweredToolCalls(state.Produced)
			logx.Debug().
				Str("request_id", state.RequestID).
				Int("messages", len(produced)).
				Float64("total_cost_usd", state.Cost.TotalUSD()).
				Msg("Agent run complete")
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read agent state: %w", err)
		}
		return produced, nil
	})
}

// TrimUnansweredToolCalls removes trailing assistant tool requests that no
// tool result follows. Text the model sent alongside such a request is kept
// as a plain assistant message.
func TrimUnansweredToolCalls(msgs []*schema.Message) []*schema.Message {
	out := slices.Clone(msgs)
	for len(out) > 0 {
		last := out[len(out)-1]
		if last == nil || last.Role != schema.Assistant || len(last.ToolCalls) == 0 {
			break
		}
		out = out[:len(out)-1]
		if strings.TrimSpace(last.Content) != "" {
			out = append(out, schema.AssistantMessage(last.Content, nil))
			break
		}
	}
	return out
}
