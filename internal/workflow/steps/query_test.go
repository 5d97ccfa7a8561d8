package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-monitor/server/internal/workflow/state"
)

func queryState(body string) state.State {
	s, _ := state.New(state.Input{RequestID: "req", SenderID: "+1", BodyText: body})
	return s
}

func TestQueryHandlerAnswers(t *testing.T) {
	agent := &fakeAgent{out: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: "generate_plot"}}}),
		schema.ToolMessage("/srv/static/plots/energy_plot_req_20240115_103000.png", "c1"),
		schema.AssistantMessage("Here is your chart for the last 7 days.", nil),
	}}

	s := queryState("plot my usage")
	next := s.Merge(QueryHandler(QueryConfig{Agent: agent, Retry: fastRetry})(context.Background(), s))

	answer, ok := next.Answer()
	require.True(t, ok)
	assert.Equal(t, "Here is your chart for the last 7 days.", answer)
	chart, ok := next.Chart()
	require.True(t, ok)
	assert.Equal(t, "/srv/static/plots/energy_plot_req_20240115_103000.png", chart)
	assert.Len(t, next.ConversationHistory, 4)
	require.Len(t, agent.seen, 1)
	assert.Equal(t, "plot my usage", agent.seen[0].Content)
}

func TestQueryHandlerEmptyBody(t *testing.T) {
	agent := &fakeAgent{}
	s := state.State{RequestID: "req", SenderID: "+1"}
	next := s.Merge(QueryHandler(QueryConfig{Agent: agent})(context.Background(), s))

	answer, _ := next.Answer()
	assert.Equal(t, NoQuestionReply, answer)
	assert.Zero(t, agent.calls)
}

func TestQueryHandlerFailures(t *testing.T) {
	cases := []struct {
		name  string
		agent *fakeAgent
		want  string
		calls int
	}{
		{
			name:  "service unavailable",
			agent: &fakeAgent{errs: []error{unavailable(), unavailable(), unavailable()}},
			want:  UpstreamErrorReply,
			calls: 3,
		},
		{
			name:  "unexpected error",
			agent: &fakeAgent{errs: []error{errors.New("tool schema mismatch")}},
			want:  UnexpectedReply,
			calls: 1,
		},
		{
			name:  "no assistant text",
			agent: &fakeAgent{out: []*schema.Message{schema.AssistantMessage("  ", nil)}},
			want:  NoAnswerReply,
			calls: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := queryState("how much?")
			next := s.Merge(QueryHandler(QueryConfig{Agent: tc.agent, Retry: fastRetry})(context.Background(), s))

			answer, ok := next.Answer()
			require.True(t, ok)
			assert.Equal(t, tc.want, answer)
			assert.Nil(t, next.ChartPath)
			assert.Equal(t, tc.calls, tc.agent.calls)
		})
	}
}

func TestQueryHandlerRecoversAfterRetry(t *testing.T) {
	agent := &fakeAgent{
		errs: []error{unavailable()},
		out:  []*schema.Message{schema.AssistantMessage("You used 42 kWh.", nil)},
	}
	s := queryState("how much?")
	next := s.Merge(QueryHandler(QueryConfig{Agent: agent, Retry: fastRetry})(context.Background(), s))

	answer, _ := next.Answer()
	assert.Equal(t, "You used 42 kWh.", answer)
	assert.Equal(t, 2, agent.calls)
}

func TestFinalAnswerSkipsToolCalls(t *testing.T) {
	msgs := []*schema.Message{
		schema.AssistantMessage("first", nil),
		schema.AssistantMessage("thinking", []schema.ToolCall{{ID: "x"}}),
		schema.ToolMessage("result", "x"),
	}
	got, ok := FinalAnswer(msgs)
	assert.True(t, ok)
	assert.Equal(t, "first", got)

	_, ok = FinalAnswer(nil)
	assert.False(t, ok)
}
