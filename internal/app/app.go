// Package app wires the configured collaborators into the workflow engine
// and the HTTP handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/energy-monitor/server/internal/agent/graph"
	"github.com/energy-monitor/server/internal/agent/graph/conversations"
	"github.com/energy-monitor/server/internal/agent/graph/tools"
	"github.com/energy-monitor/server/internal/agent/model"
	"github.com/energy-monitor/server/internal/agent/repo"
	"github.com/energy-monitor/server/internal/chart"
	"github.com/energy-monitor/server/internal/config"
	"github.com/energy-monitor/server/internal/delivery"
	"github.com/energy-monitor/server/internal/llm"
	"github.com/energy-monitor/server/internal/media"
	"github.com/energy-monitor/server/internal/metrics"
	"github.com/energy-monitor/server/internal/price"
	"github.com/energy-monitor/server/internal/store"
	"github.com/energy-monitor/server/internal/vision"
	"github.com/energy-monitor/server/internal/webhook"
	"github.com/energy-monitor/server/internal/workflow"
	"github.com/energy-monitor/server/internal/workflow/state"
	"github.com/energy-monitor/server/internal/workflow/steps"
	logx "github.com/energy-monitor/server/pkg/logger"
)

// RequestTimeout bounds one webhook-triggered workflow run.
const RequestTimeout = 2 * time.Minute

// App holds the running service.
type App struct {
	Config  *config.AppConfig
	Engine  *workflow.Engine
	History *conversations.MessagesManager
	Metrics *metrics.Metrics

	closers []func() error
}

// Option overrides a collaborator, mostly for the CLI.
type Option func(*options)

type options struct {
	fetcher steps.Fetcher
	sender  steps.Sender
}

// WithFetcher replaces the attachment downloader.
func WithFetcher(f steps.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithSender replaces the outbound delivery.
func WithSender(s steps.Sender) Option {
	return func(o *options) { o.sender = s }
}

// Build connects every backend and compiles the workflow. Close releases
// what Build opened, including on error.
func Build(ctx context.Context, cfg *config.AppConfig, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	for _, dir := range []string{cfg.AssetDirectory(), cfg.ChartDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if cfg.MetricsEnabled {
		a.Metrics = metrics.New()
	}

	genaiClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	visionClient := vision.New(genaiClient.Models, cfg.Vision)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open reading store: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	prices := price.NewService(cfg.Price, price.NewHTTPFetcher(cfg.Price.APIURL, nil))
	charts := chart.NewRenderer(cfg.ChartDir)

	agent, err := graph.BuildQueryAgent(ctx, graph.Config{
		Client: genaiClient,
		Agent:  cfg.Agent,
		Tools:  tools.Deps{Readings: st, Prices: prices, Charts: charts},
	})
	if err != nil {
		return nil, fmt.Errorf("build query agent: %w", err)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = media.NewFetcher(nil, cfg.Delivery.AccountSID, cfg.Delivery.AuthToken)
	}
	sender := o.sender
	if sender == nil {
		sender = delivery.NewSender(cfg.Delivery)
	}

	a.Engine, err = workflow.New(ctx, workflow.Steps{
		Parser: steps.Parser(),
		Classifier: steps.Classifier(steps.ClassifierConfig{
			Fetcher:  fetcher,
			Vision:   visionClient,
			AssetDir: cfg.AssetDirectory(),
		}),
		Extractor:    steps.Extractor(steps.ExtractorConfig{Vision: visionClient}),
		StoreWriter:  steps.StoreWriter(steps.StoreWriterConfig{Store: st, OnResult: a.Metrics.StoreWrite}),
		QueryHandler: steps.QueryHandler(steps.QueryConfig{Agent: agent}),
		Responder:    steps.Responder(steps.ResponderConfig{Sender: sender, OnDelivery: a.Metrics.Delivery}),
	}, workflow.WithHooks(workflow.Hooks{
		OnNodeLeave: func(_ context.Context, node string, _ state.State, elapsed time.Duration) {
			a.Metrics.NodeVisited(node, elapsed)
		},
	}))
	if err != nil {
		return nil, err
	}

	conversationRepo, err := a.conversationRepository(ctx)
	if err != nil {
		return nil, err
	}
	a.History = conversations.NewMessagesManager(conversationRepo, cfg.Conversation)

	return a, nil
}

func (a *App) conversationRepository(ctx context.Context) (model.ConversationRepository, error) {
	cfg := a.Config
	if !cfg.Redis.Enabled() {
		logx.Info().Msg("REDIS_URL not set, conversation history is kept in memory")
		return repo.NewMemoryConversationRepository(cfg.Conversation.MaxMessages), nil
	}

	ttl, err := cfg.ConversationTTL()
	if err != nil {
		return nil, err
	}
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	logx.Info().Msg("Connected to Redis successfully")
	return repo.NewRedisConversationRepository(rdb, ttl, cfg.Conversation.MaxMessages), nil
}

// Handler returns the HTTP routes.
func (a *App) Handler() http.Handler {
	return webhook.New(webhook.Config{
		AuthToken:       a.Config.Delivery.AuthToken,
		VerifySignature: a.Config.VerifySignature,
		ChartDir:        a.Config.ChartDir,
		Timeout:         RequestTimeout,
	}, a.Engine, a.History, a.Metrics).Routes()
}

// Close releases the store and Redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
