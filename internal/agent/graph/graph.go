package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/energy-monitor/server/internal/agent/graph/nodes"
	"github.com/energy-monitor/server/internal/agent/graph/observers"
	"github.com/energy-monitor/server/internal/agent/graph/tools"
	"github.com/energy-monitor/server/internal/agent/model"
	"github.com/energy-monitor/server/internal/llm"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// DefaultMaxSteps bounds one agent run when the config does not.
const DefaultMaxSteps = 10

// Runner executes the compiled agent over a conversation and returns the
// messages it produced.
type Runner interface {
	Invoke(ctx context.Context, history []*schema.Message) ([]*schema.Message, error)
}

// Config holds everything needed to build the query agent end to end.
type Config struct {
	Client *genai.Client
	Agent  model.AgentConfig
	Tools  tools.Deps
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModel    nodes.ToolBindingChatModel
	ModelName    string
	Tools        []tool.BaseTool
	MaxToolCalls int
	MaxSteps     int
}

// GraphBuilder handles the construction of the agent graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[[]*schema.Message, []*schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[[]*schema.Message, []*schema.Message]
}

// NewRunner wraps a compiled agent graph.
func NewRunner(runnable compose.Runnable[[]*schema.Message, []*schema.Message]) Runner {
	return &graphRunner{runnable: runnable}
}

// Invoke runs the agent. Gemini failures are classified so callers can retry
// the transient ones.
func (r *graphRunner) Invoke(ctx context.Context, history []*schema.Message) ([]*schema.Message, error) {
	out, err := r.runnable.Invoke(ctx, history, compose.WithCallbacks(observers.NewRunCallbacks()))
	if err != nil {
		return nil, llm.WrapError(err)
	}
	return out, nil
}

// BuildQueryAgent creates the chat model, builds the graph and returns a Runner.
func BuildQueryAgent(ctx context.Context, cfg Config) (Runner, error) {
	cm, err := nodes.NewChatModel(ctx, cfg.Client, cfg.Agent)
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModel:    cm,
		ModelName:    cfg.Agent.Model,
		Tools:        tools.GetQueryTools(cfg.Tools),
		MaxToolCalls: cfg.Agent.MaxToolCalls,
		MaxSteps:     cfg.Agent.MaxSteps,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Str("model", cfg.Agent.Model).Msg("Query agent built successfully")
	return NewRunner(runnable), nil
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[[]*schema.Message, []*schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is not initialized")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[[]*schema.Message, []*schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the tools to the model and adds the tools node
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	toolInfos, err := tools.GetToolInfos(ctx, b.config.Tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}
	if err := nodes.BindTools(b.config.ChatModel, toolInfos); err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               b.config.Tools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: tools.SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	return b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.MaxToolCalls)),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	); err != nil {
		return err
	}

	if err := b.graph.AddChatModelNode(nodes.NodeChatModel,
		b.config.ChatModel,
		compose.WithStatePreHandler(nodes.NewChatModelPreHandler(b.config.MaxToolCalls)),
		compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.config.ModelName)),
	); err != nil {
		return err
	}

	return b.graph.AddLambdaNode(nodes.NodeCollector, nodes.NewCollectorNode())
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
		{nodes.NodeCollector, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeCollector:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[[]*schema.Message, []*schema.Message], error) {
	maxSteps := b.config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("query_agent"),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}
