package model

import (
	"github.com/cloudwego/eino/schema"
)

// DefaultMaxToolCalls applies when the configured tool budget is not positive.
const DefaultMaxToolCalls = 3

// AppState stores per-invocation state for the agent graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState.
//   - Read and written only inside eino state handlers or compose.ProcessState,
//     which serialize access, so no extra locking is needed.
type AppState struct {
	RequestID            string
	History              []*schema.Message // model context, grows across the loop
	Produced             []*schema.Message // assistant and tool messages created in this run
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits one

	Cost Cost
}

// Reset starts a new run for requestID.
func (s *AppState) Reset(requestID string) {
	*s = AppState{RequestID: requestID}
}

// ToolBudget returns max, or DefaultMaxToolCalls when max is not positive.
func ToolBudget(max int) int {
	if max <= 0 {
		return DefaultMaxToolCalls
	}
	return max
}

// MarkToolLimit flags the run once the tool budget is spent. It reports true
// only on the call that sets the flag.
func (s *AppState) MarkToolLimit(max int) bool {
	if !s.ToolCallLimitReached && s.ToolCallCount >= ToolBudget(max) {
		s.ToolCallLimitReached = true
		return true
	}
	return false
}

// RecordToolRound counts one tool round and reports whether it went over
// budget.
func (s *AppState) RecordToolRound(max int) bool {
	s.ToolCallCount++
	if s.ToolCallCount > ToolBudget(max) {
		s.ToolCallLimitReached = true
		return true
	}
	return false
}

// NextToolCallID returns call_1, call_2, ... for calls without a provider id.
func (s *AppState) NextToolCallID() string {
	s.ToolCallIDSeq++
	return toolCallID(s.ToolCallIDSeq)
}

// AddUsage prices usage for modelName and adds it to the run total.
func (s *AppState) AddUsage(modelName string, usage *schema.TokenUsage) Cost {
	c := UsageCost(modelName, usage)
	s.Cost = s.Cost.Add(c)
	return c
}
