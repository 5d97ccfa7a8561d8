// Package workflow compiles the message-processing steps into an eino graph
// and runs it for one inbound message.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/energy-monitor/server/internal/workflow/routing"
	"github.com/energy-monitor/server/internal/workflow/state"
	"github.com/energy-monitor/server/internal/workflow/steps"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// MaxRunSteps bounds a run. The longest path visits five nodes.
const MaxRunSteps = 10

// Steps are the graph's nodes. Every field is required.
type Steps struct {
	Parser       steps.Func
	Classifier   steps.Func
	Extractor    steps.Func
	StoreWriter  steps.Func
	QueryHandler steps.Func
	Responder    steps.Func
}

func (s Steps) byRoute() (map[routing.Route]steps.Func, error) {
	m := map[routing.Route]steps.Func{
		routing.Parser:       s.Parser,
		routing.Classifier:   s.Classifier,
		routing.Extractor:    s.Extractor,
		routing.StoreWriter:  s.StoreWriter,
		routing.QueryHandler: s.QueryHandler,
		routing.Responder:    s.Responder,
	}
	for r, fn := range m {
		if fn == nil {
			return nil, fmt.Errorf("step %q is nil", r)
		}
	}
	return m, nil
}

// Hooks observe node execution.
type Hooks struct {
	OnNodeEnter func(ctx context.Context, node string, s state.State)
	OnNodeLeave func(ctx context.Context, node string, s state.State, elapsed time.Duration)
}

// Engine runs the compiled workflow. It is safe for concurrent use; every
// run works on its own State.
type Engine struct {
	runnable compose.Runnable[state.State, state.State]
}

// Option configures an Engine.
type Option func(*builder)

// WithHooks registers node observers.
func WithHooks(h Hooks) Option {
	return func(b *builder) {
		b.hooks = h
	}
}

type builder struct {
	steps map[routing.Route]steps.Func
	hooks Hooks
	graph *compose.Graph[state.State, state.State]
}

func init() {
	// Branches are exclusive, so the responder never receives two inputs in
	// one superstep; the merge only has to satisfy the type check.
	compose.RegisterValuesMergeFunc(func(vs []state.State) (state.State, error) {
		if len(vs) == 0 {
			return state.State{}, errors.New("no state to merge")
		}
		out := vs[0]
		for _, v := range vs[1:] {
			if len(v.Visited) > len(out.Visited) {
				out = v
			}
		}
		return out, nil
	})
}

// New compiles the workflow graph.
func New(ctx context.Context, s Steps, opts ...Option) (*Engine, error) {
	m, err := s.byRoute()
	if err != nil {
		return nil, err
	}

	b := &builder{
		steps: m,
		graph: compose.NewGraph[state.State, state.State](),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("energy_workflow"),
		compose.WithMaxRunSteps(MaxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling workflow graph")
		return nil, fmt.Errorf("error compiling workflow graph: %w", err)
	}

	logx.Debug().Msg("Workflow graph compiled successfully")
	return &Engine{runnable: runnable}, nil
}

// Run executes the workflow from the initial state to the responder and
// returns the final state. Step failures never surface here; an error means
// the graph itself could not run.
func (e *Engine) Run(ctx context.Context, initial state.State) (state.State, error) {
	out, err := e.runnable.Invoke(ctx, initial)
	if err != nil {
		logx.Error().Err(err).Str("request_id", initial.RequestID).Msg("Workflow run failed")
		return initial, fmt.Errorf("workflow run: %w", err)
	}
	return out, nil
}

func (b *builder) addNodes() error {
	for _, r := range routing.Routes {
		if err := b.graph.AddLambdaNode(r.String(), b.node(r.String(), b.steps[r]), compose.WithNodeName(r.String())); err != nil {
			return fmt.Errorf("add node %s: %w", r, err)
		}
	}
	return nil
}

// node adapts a step to a lambda: run the step, merge its patch, record the
// visit.
func (b *builder) node(name string, fn steps.Func) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in state.State) (state.State, error) {
		if b.hooks.OnNodeEnter != nil {
			b.hooks.OnNodeEnter(ctx, name, in)
		}
		start := time.Now()

		out := in.Merge(fn(ctx, in)).Visit(name)

		elapsed := time.Since(start)
		logx.Debug().
			Str("request_id", in.RequestID).
			Str("node", name).
			Dur("elapsed", elapsed).
			Msg("Node completed")
		if b.hooks.OnNodeLeave != nil {
			b.hooks.OnNodeLeave(ctx, name, out, elapsed)
		}
		return out, nil
	})
}

func (b *builder) addEdges() error {
	edges := [][2]string{
		{compose.START, routing.Parser.String()},
		{routing.Extractor.String(), routing.StoreWriter.String()},
		{routing.StoreWriter.String(), routing.Responder.String()},
		{routing.QueryHandler.String(), routing.Responder.String()},
		{routing.Responder.String(), compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func (b *builder) addBranches() error {
	parseBranch := compose.NewGraphBranch(
		condition(routing.AfterParse),
		routing.Targets(routing.Classifier, routing.QueryHandler, routing.Responder),
	)
	if err := b.graph.AddBranch(routing.Parser.String(), parseBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding parser branch")
		return fmt.Errorf("error adding parser branch: %w", err)
	}

	classifyBranch := compose.NewGraphBranch(
		condition(routing.AfterClassify),
		routing.Targets(routing.Extractor, routing.Responder),
	)
	if err := b.graph.AddBranch(routing.Classifier.String(), classifyBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding classifier branch")
		return fmt.Errorf("error adding classifier branch: %w", err)
	}

	return nil
}

func condition(pick func(state.State) routing.Route) func(context.Context, state.State) (string, error) {
	return func(_ context.Context, s state.State) (string, error) {
		return pick(s).String(), nil
	}
}
