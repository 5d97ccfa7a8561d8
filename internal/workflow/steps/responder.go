package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/retry"
	"github.com/energy-monitor/server/internal/workflow/state"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const nodeResponder = "responder"

// Fixed replies.
const (
	FailureReply     = "❌ Failed to register reading. Please try again."
	UnsupportedReply = "Sorry, currently I can only register energy counter images. More functionalities coming."
)

// MediaPath is the URL path under which chart files are served.
const MediaPath = "/static/plots/"

// ResponderConfig wires the responder.
type ResponderConfig struct {
	Sender Sender
	// Retry governs delivery. Defaults to retry.Delivery.
	Retry retry.Policy
	// OnDelivery observes the delivery outcome.
	OnDelivery func(ok bool)
}

// Responder composes the reply and sends it to the sender. Delivery
// failures are logged; final_reply_text is always set.
func Responder(cfg ResponderConfig) Func {
	policy := orDefault(cfg.Retry, retry.Delivery)

	return guard(nodeResponder, responderFallback, func(ctx context.Context, s state.State) state.Patch {
		text, mediaURL := ComposeReply(s)

		ok := deliver(ctx, cfg.Sender, policy, s, text, mediaURL)
		if cfg.OnDelivery != nil {
			cfg.OnDelivery(ok)
		}
		return state.Patch{FinalReplyText: state.String(text)}
	})
}

// ComposeReply picks the reply body and optional media URL. A query answer
// wins; otherwise the classification and store outcome decide.
func ComposeReply(s state.State) (text, mediaURL string) {
	if answer, ok := s.Answer(); ok && answer != "" {
		return answer, chartURL(s)
	}
	if s.IsTargetSubject {
		value, hasValue := s.Value()
		ts, hasTS := s.Timestamp()
		if s.StoreWriteSuccess && hasValue && hasTS {
			return SuccessReply(ts, value), ""
		}
		return FailureReply, ""
	}
	return UnsupportedReply, ""
}

// SuccessReply confirms a stored reading.
func SuccessReply(timestamp string, value float64) string {
	date := timestamp
	if d, err := ParseReadingDate(timestamp); err == nil {
		date = d.Format("2006-01-02")
	}
	return "✅ Energy reading registered: " + strconv.FormatFloat(value, 'f', -1, 64) + " kWh on " + date
}

// chartURL builds the public URL of the chart when the file still exists.
func chartURL(s state.State) string {
	path, ok := s.Chart()
	if !ok {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		stepLog(logx.Warn(), nodeResponder, s).Err(err).Str("chart_path", path).Msg("Chart file missing, sending text only")
		return ""
	}
	if s.ReplyBaseURL == "" {
		stepLog(logx.Warn(), nodeResponder, s).Msg("No reply base URL, cannot attach chart")
		return ""
	}
	return s.ReplyBaseURL + MediaPath + filepath.Base(path)
}

func deliver(ctx context.Context, sender Sender, policy retry.Policy, s state.State, text, mediaURL string) bool {
	if sender == nil {
		stepLog(logx.Warn(), nodeResponder, s).Msg("No sender configured, reply not delivered")
		return false
	}
	if s.SenderID == "" {
		stepLog(logx.Warn(), nodeResponder, s).Msg("No sender id in state, cannot send response")
		return false
	}

	sid, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return sender.Send(ctx, s.SenderID, text, mediaURL)
	})
	if err != nil {
		ev := stepLog(logx.Warn(), nodeResponder, s).Err(err)
		var ae *errx.AppError
		if errors.As(err, &ae) {
			ev = ev.Int("status", ae.Status)
		}
		ev.Msg("Failed to send response, but continuing workflow")
		return false
	}
	stepLog(logx.Info(), nodeResponder, s).Str("sid", sid).Bool("media", mediaURL != "").Msg("Response delivered")
	return true
}

func responderFallback(s state.State) state.Patch {
	return state.Patch{FinalReplyText: state.String(UnsupportedReply)}
}
