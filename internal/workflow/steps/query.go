package steps

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/energy-monitor/server/internal/chart"
	"github.com/energy-monitor/server/internal/core"
	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/retry"
	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const nodeQueryHandler = "query_handler"

// Apologies returned instead of an agent answer.
const (
	NoQuestionReply    = "I didn't receive a question. Please ask me about your energy consumption."
	UpstreamErrorReply = "I'm having trouble connecting to my AI service. Please try again in a moment."
	UnexpectedReply    = "An unexpected error occurred while processing your question. Please try again."
	NoAnswerReply      = "I couldn't process your question. Please try again."
)

// QueryConfig wires the query handler.
type QueryConfig struct {
	Agent Agent
	// Retry governs the agent invocation. Defaults to retry.AgentCall.
	Retry retry.Policy
}

// QueryHandler answers a text question with the tool-calling agent. The
// agent sees the whole conversation; the messages it produces are appended
// to it. A chart path returned by any tool is recorded as chart_path.
func QueryHandler(cfg QueryConfig) Func {
	policy := orDefault(cfg.Retry, retry.AgentCall)

	return guard(nodeQueryHandler, queryFallback, func(ctx context.Context, s state.State) state.Patch {
		if strings.TrimSpace(s.BodyText) == "" {
			stepLog(logx.Warn(), nodeQueryHandler, s).Msg("No message body found in state")
			return state.Patch{QueryAnswer: state.Some(NoQuestionReply), ChartPath: state.Null[string]()}
		}
		if cfg.Agent == nil {
			stepLog(logx.Error(), nodeQueryHandler, s).Msg("Query agent is not configured")
			return queryFallback(s)
		}

		ctx = core.WithRequestID(ctx, s.RequestID)
		produced, err := retry.Do(ctx, policy, func(ctx context.Context) ([]*schema.Message, error) {
			return cfg.Agent.Invoke(ctx, s.ConversationHistory)
		})
		if err != nil {
			ev := stepLog(logx.Error(), nodeQueryHandler, s).Err(err).Str("kind", errx.KindOf(err).String())
			if errx.IsTransient(err) {
				ev.Msg("AI service error during query handling")
				return state.Patch{QueryAnswer: state.Some(UpstreamErrorReply), ChartPath: state.Null[string]()}
			}
			ev.Msg("Unexpected error during query handling")
			return queryFallback(s)
		}

		p := state.Patch{
			AppendHistory: produced,
			QueryAnswer:   state.Some(NoAnswerReply),
			ChartPath:     state.Null[string](),
		}
		if answer, ok := FinalAnswer(produced); ok {
			p.QueryAnswer = state.Some(answer)
		} else {
			stepLog(logx.Warn(), nodeQueryHandler, s).Int("messages", len(produced)).Msg("Agent produced no answer")
		}
		if path, ok := FindChartPath(produced); ok {
			stepLog(logx.Info(), nodeQueryHandler, s).Str("chart_path", path).Msg("Chart generated")
			p.ChartPath = state.Some(path)
		}
		return p
	})
}

// FinalAnswer returns the content of the last assistant message that does
// not request tool calls.
func FinalAnswer(msgs []*schema.Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil || m.Role != schema.Assistant || len(m.ToolCalls) > 0 {
			continue
		}
		if text := strings.TrimSpace(m.Content); text != "" {
			return text, true
		}
	}
	return "", false
}

// FindChartPath returns the first message content that is a chart file path.
func FindChartPath(msgs []*schema.Message) (string, bool) {
	for _, m := range msgs {
		if m != nil && chart.IsChartPath(m.Content) {
			return strings.TrimSpace(m.Content), true
		}
	}
	return "", false
}

func queryFallback(state.State) state.Patch {
	return state.Patch{QueryAnswer: state.Some(UnexpectedReply), ChartPath: state.Null[string]()}
}
