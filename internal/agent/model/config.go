package model

// ================ Config ================
type AgentConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.3"`
	// MaxSteps bounds one agent run (model and tool nodes).
	MaxSteps int `envconfig:"AGENT_MAX_STEPS" default:"10"`
	// MaxToolCalls is the number of tool rounds before the model must answer.
	MaxToolCalls int `envconfig:"AGENT_TOOL_MAX_CALLS" default:"3"`
}

type ConversationConfig struct {
	TTL         string `envconfig:"CONVERSATION_TTL" default:"15m"`
	MaxMessages int    `envconfig:"CONVERSATION_MAX_MESSAGES" default:"20"`
}
