package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewRunCallbacks returns the handler attached to every agent run. Each
// event is logged with the request id of the message being answered, so a
// query's model turns, tool calls and rendered prompts can be followed in
// the logs next to its workflow steps.
func NewRunCallbacks() einocb.Handler {
	helper := callbackHelper.NewHandlerHelper()
	helper.ChatModel(newModelHandler())
	helper.Tool(newToolHandler())
	helper.Prompt(newPromptHandler())
	return helper.Handler()
}
