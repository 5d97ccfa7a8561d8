// Package delivery sends WhatsApp replies through Twilio.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	errx "github.com/energy-monitor/server/internal/core/error"
	logx "github.com/energy-monitor/server/pkg/logger"
)

const whatsappPrefix = "whatsapp:"

// Twilio error codes with a known cause.
const (
	codeInvalidTo       = 21211
	codeFromNotWhatsApp = 21606
)

var (
	ErrNoRecipient = errors.New("recipient is empty")
	ErrNoBody      = errors.New("message body is empty")
)

// Config holds Twilio credentials and the sending number.
type Config struct {
	AccountSID  string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken   string `envconfig:"TWILIO_AUTH_TOKEN"`
	PhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER"`
}

// MessageCreator is the Twilio Messages API.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Sender delivers one message per call. It does not retry.
type Sender struct {
	api  MessageCreator
	from string
}

// NewSender returns a Sender backed by the Twilio REST client.
func NewSender(cfg Config) *Sender {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewSenderWithAPI(rc.Api, cfg.PhoneNumber)
}

// NewSenderWithAPI returns a Sender using api.
func NewSenderWithAPI(api MessageCreator, from string) *Sender {
	return &Sender{api: api, from: whatsapp(from)}
}

// Send delivers text, with mediaURL attached when non-empty, and returns the
// provider message id. Provider failures carry their HTTP status so callers
// can tell transient 5xx from terminal 4xx.
func (s *Sender) Send(ctx context.Context, to, text, mediaURL string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", errx.Validation(ErrNoRecipient, "cannot send message")
	}
	if strings.TrimSpace(text) == "" {
		return "", errx.Validation(ErrNoBody, "cannot send message")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(whatsapp(to))
	params.SetBody(text)
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}

	log := logx.Info().Str("to", whatsapp(to))
	if mediaURL != "" {
		log = log.Str("media_url", mediaURL)
	}
	log.Msg("Sending WhatsApp message")

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return "", classify(err)
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	logx.Info().Str("sid", sid).Msg("WhatsApp message sent")
	return sid, nil
}

func classify(err error) error {
	var te *client.TwilioRestError
	if errors.As(err, &te) {
		ev := logx.Error().Int("code", te.Code).Int("status", te.Status).Str("message", te.Message)
		switch te.Code {
		case codeInvalidTo:
			ev.Msg("Invalid 'To' phone number format")
		case codeFromNotWhatsApp:
			ev.Msg("The 'From' phone number is not a valid WhatsApp-enabled number")
		default:
			ev.Msg("Twilio API error")
		}
		return errx.WrapDelivery(err, te.Status)
	}
	if errx.IsNetwork(err) {
		return errx.WrapDelivery(err, 503)
	}
	return errx.WrapDelivery(fmt.Errorf("twilio: %w", err), 0)
}

func whatsapp(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}
