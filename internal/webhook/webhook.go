// Package webhook is the HTTP boundary: it accepts inbound messages from the
// messaging provider and runs them through the workflow.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/twilio/twilio-go/client"

	"github.com/energy-monitor/server/internal/metrics"
	"github.com/energy-monitor/server/internal/workflow/state"
	"github.com/energy-monitor/server/internal/workflow/steps"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const (
	WebhookPath = "/webhook/twilio"
	HealthPath  = "/health"
	MetricsPath = "/metrics"

	ServiceName = "energy-monitor"

	// maxAttachments bounds the MediaUrl{i} fields read from one message.
	maxAttachments = 10
)

// Request results recorded in metrics.
const (
	ResultOK        = "ok"
	ResultForbidden = "forbidden"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)

// Runner executes the workflow for one message.
type Runner interface {
	Run(ctx context.Context, initial state.State) (state.State, error)
}

// History loads and saves per-sender conversation history.
type History interface {
	Load(ctx context.Context, conversationID string) []*schema.Message
	Save(ctx context.Context, conversationID string, messages []*schema.Message)
}

// SignatureValidator checks the provider's request signature.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// Config configures the handler.
type Config struct {
	// AuthToken signs inbound requests. Required when VerifySignature is set.
	AuthToken       string
	VerifySignature bool
	// ChartDir is served under steps.MediaPath.
	ChartDir string
	// Timeout bounds one workflow run. Zero means no limit.
	Timeout time.Duration
}

// Handler serves the webhook, health, static chart and metrics routes.
type Handler struct {
	runner    Runner
	history   History
	metrics   *metrics.Metrics
	validator SignatureValidator
	chartDir  string
	timeout   time.Duration
}

// Option customises a Handler.
type Option func(*Handler)

// WithValidator replaces the signature validator.
func WithValidator(v SignatureValidator) Option {
	return func(h *Handler) { h.validator = v }
}

// New returns a Handler. history and m may be nil.
func New(cfg Config, runner Runner, history History, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		runner:   runner,
		history:  history,
		metrics:  m,
		chartDir: cfg.ChartDir,
		timeout:  cfg.Timeout,
	}
	if cfg.VerifySignature {
		v := client.NewRequestValidator(cfg.AuthToken)
		h.validator = &v
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get(HealthPath, h.health)
	r.Post(WebhookPath, h.receive)
	if h.chartDir != "" {
		r.Handle(steps.MediaPath+"*", http.StripPrefix(steps.MediaPath, http.FileServer(http.Dir(h.chartDir))))
	}
	if h.metrics != nil {
		r.Handle(MetricsPath, h.metrics.Handler())
	}
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	}); err != nil {
		logx.Error().Err(err).Msg("health response encode failed")
	}
}

// receive answers 200 for everything except a bad signature so the provider
// does not retry messages that already failed inside the workflow.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		logx.Warn().Err(err).Msg("webhook: invalid form body")
		h.metrics.Request(ResultInvalid)
		w.WriteHeader(http.StatusOK)
		return
	}

	base := BaseURL(r)
	if h.validator != nil {
		sig := r.Header.Get("X-Twilio-Signature")
		if !h.validator.Validate(base+r.URL.RequestURI(), formParams(r), sig) {
			logx.Warn().Str("from", r.PostForm.Get("From")).Msg("webhook: invalid signature")
			h.metrics.Request(ResultForbidden)
			http.Error(w, "Invalid Twilio signature", http.StatusForbidden)
			return
		}
	}

	msg := ParseMessage(r)
	ctx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	h.metrics.Request(h.process(ctx, msg, base))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) process(ctx context.Context, msg Message, base string) string {
	var history []*schema.Message
	if h.history != nil {
		history = h.history.Load(ctx, msg.From)
	}

	initial, err := state.New(state.Input{
		RequestID:      msg.MessageSID,
		SenderID:       msg.From,
		BodyText:       msg.Body,
		AttachmentURLs: msg.MediaURLs,
		ReplyBaseURL:   base,
		History:        history,
	})
	if err != nil {
		logx.Warn().Err(err).Str("message_sid", msg.MessageSID).Msg("webhook: rejected message")
		return ResultInvalid
	}

	logx.Info().
		Str("request_id", initial.RequestID).
		Int("attachments", len(initial.AttachmentURLs)).
		Msg("processing webhook message")

	final, err := h.runner.Run(ctx, initial)
	if err != nil {
		logx.Error().Err(err).Str("request_id", initial.RequestID).Msg("workflow failed")
		return ResultError
	}

	if h.history != nil && len(final.ConversationHistory) > len(history) {
		h.history.Save(ctx, msg.From, final.ConversationHistory[len(history):])
	}

	logx.Info().
		Str("request_id", final.RequestID).
		Strs("visited", final.Visited).
		Bool("store_write_success", final.StoreWriteSuccess).
		Msg("workflow completed")
	return ResultOK
}

// Message is the part of the provider's form payload the workflow uses.
type Message struct {
	MessageSID string
	From       string
	Body       string
	MediaURLs  []string
}

// ParseMessage reads MessageSid, From, Body, NumMedia and MediaUrl{i} from a
// parsed form.
func ParseMessage(r *http.Request) Message {
	msg := Message{
		MessageSID: r.PostForm.Get("MessageSid"),
		From:       r.PostForm.Get("From"),
		Body:       r.PostForm.Get("Body"),
	}
	n, err := strconv.Atoi(r.PostForm.Get("NumMedia"))
	if err != nil || n < 0 {
		n = 0
	}
	for i := 0; i < min(n, maxAttachments); i++ {
		if u := r.PostForm.Get("MediaUrl" + strconv.Itoa(i)); u != "" {
			msg.MediaURLs = append(msg.MediaURLs, u)
		}
	}
	return msg
}

// BaseURL is the externally visible scheme://host of r, honouring
// X-Forwarded-Proto and X-Forwarded-Host set by a reverse proxy.
func BaseURL(r *http.Request) string {
	scheme := firstValue(r.Header.Get("X-Forwarded-Proto"))
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := firstValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host
}

func firstValue(header string) string {
	v, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(v)
}

func formParams(r *http.Request) map[string]string {
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return params
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Twilio-Signature")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
