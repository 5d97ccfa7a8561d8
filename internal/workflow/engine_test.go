package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-monitor/server/internal/workflow/state"
	"github.com/energy-monitor/server/internal/workflow/steps"
)

type recorder struct {
	mu     sync.Mutex
	called []string
}

func (r *recorder) step(name string, p state.Patch) steps.Func {
	return func(context.Context, state.State) state.Patch {
		r.mu.Lock()
		r.called = append(r.called, name)
		r.mu.Unlock()
		return p
	}
}

func testSteps(r *recorder, isTarget bool) Steps {
	return Steps{
		Parser:       steps.Parser(),
		Classifier:   r.step("classifier", state.Patch{IsTargetSubject: state.Bool(isTarget)}),
		Extractor:    r.step("extractor", state.Patch{ExtractedValue: state.Some(12345.67), ExtractedTimestamp: state.Some("2024-01-15T10:30:00")}),
		StoreWriter:  r.step("store_writer", state.Patch{StoreWriteSuccess: state.Bool(true)}),
		QueryHandler: r.step("query_handler", state.Patch{QueryAnswer: state.Some("42 kWh")}),
		Responder: func(_ context.Context, s state.State) state.Patch {
			text, _ := steps.ComposeReply(s)
			return state.Patch{FinalReplyText: state.String(text)}
		},
	}
}

func run(t *testing.T, s Steps, in state.Input, opts ...Option) state.State {
	t.Helper()
	eng, err := New(context.Background(), s, opts...)
	require.NoError(t, err)
	initial, err := state.New(in)
	require.NoError(t, err)
	out, err := eng.Run(context.Background(), initial)
	require.NoError(t, err)
	return out
}

func TestTextOnlyMessageGoesToQueryHandler(t *testing.T) {
	r := &recorder{}
	out := run(t, testSteps(r, true), state.Input{RequestID: "r1", SenderID: "+1", BodyText: "how much this week?"})

	assert.True(t, out.IsQuery)
	assert.False(t, out.HasAttachment)
	assert.Equal(t, []string{"parser", "query_handler", "responder"}, out.Visited)
	assert.NotContains(t, r.called, "classifier")
	assert.NotContains(t, r.called, "extractor")
	assert.Equal(t, "42 kWh", out.FinalReplyText)
}

func TestMeterImageRunsFullChain(t *testing.T) {
	r := &recorder{}
	out := run(t, testSteps(r, true), state.Input{RequestID: "r2", SenderID: "+1", AttachmentURLs: []string{"https://m/1"}})

	assert.Equal(t, []string{"parser", "classifier", "extractor", "store_writer", "responder"}, out.Visited)
	assert.Equal(t, "✅ Energy reading registered: 12345.67 kWh on 2024-01-15", out.FinalReplyText)
	assert.True(t, out.StoreWriteSuccess)
	assert.LessOrEqual(t, len(out.Visited), 5)
}

func TestOtherImageSkipsExtraction(t *testing.T) {
	r := &recorder{}
	out := run(t, testSteps(r, false), state.Input{RequestID: "r3", SenderID: "+1", AttachmentURLs: []string{"https://m/1"}})

	assert.Equal(t, []string{"parser", "classifier", "responder"}, out.Visited)
	assert.Equal(t, []string{"classifier"}, r.called)
	assert.Equal(t, steps.UnsupportedReply, out.FinalReplyText)
}

func TestEmptyMessageGoesStraightToResponder(t *testing.T) {
	r := &recorder{}
	out := run(t, testSteps(r, true), state.Input{RequestID: "r4", SenderID: "+1"})

	assert.Equal(t, []string{"parser", "responder"}, out.Visited)
	assert.Empty(t, r.called)
	assert.Equal(t, steps.UnsupportedReply, out.FinalReplyText)
}

func TestHooksObserveEveryNode(t *testing.T) {
	var entered, left []string
	hooks := Hooks{
		OnNodeEnter: func(_ context.Context, node string, _ state.State) { entered = append(entered, node) },
		OnNodeLeave: func(_ context.Context, node string, s state.State, d time.Duration) {
			left = append(left, node)
			assert.Equal(t, node, s.Visited[len(s.Visited)-1])
			assert.GreaterOrEqual(t, d, time.Duration(0))
		},
	}

	out := run(t, testSteps(&recorder{}, false), state.Input{RequestID: "r5", SenderID: "+1", AttachmentURLs: []string{"https://m/1"}}, WithHooks(hooks))

	assert.Equal(t, out.Visited, entered)
	assert.Equal(t, out.Visited, left)
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	eng, err := New(context.Background(), testSteps(&recorder{}, true))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]state.State, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := state.Input{RequestID: "c", SenderID: "+1", BodyText: "usage?"}
			if i%2 == 0 {
				in = state.Input{RequestID: "c", SenderID: "+1", AttachmentURLs: []string{"https://m/1"}}
			}
			s, err := state.New(in)
			if !assert.NoError(t, err) {
				return
			}
			results[i], err = eng.Run(context.Background(), s)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i, out := range results {
		if i%2 == 0 {
			assert.Len(t, out.Visited, 5)
		} else {
			assert.Len(t, out.Visited, 3)
		}
	}
}

func TestNewRejectsMissingStep(t *testing.T) {
	s := testSteps(&recorder{}, true)
	s.Extractor = nil
	_, err := New(context.Background(), s)
	assert.ErrorContains(t, err, "extractor")
}
