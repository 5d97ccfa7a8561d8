package delivery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	errx "github.com/energy-monitor/server/internal/core/error"
)

type fakeAPI struct {
	params []*openapi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(p *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM0001"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestSendAddsWhatsAppPrefix(t *testing.T) {
	api := &fakeAPI{}
	s := NewSenderWithAPI(api, "+14155238886")

	sid, err := s.Send(context.Background(), "+33600000000", "hello", "https://x.test/static/plots/p.png")
	require.NoError(t, err)
	assert.Equal(t, "SM0001", sid)

	require.Len(t, api.params, 1)
	p := api.params[0]
	assert.Equal(t, "whatsapp:+14155238886", *p.From)
	assert.Equal(t, "whatsapp:+33600000000", *p.To)
	assert.Equal(t, "hello", *p.Body)
	require.NotNil(t, p.MediaUrl)
	assert.Equal(t, []string{"https://x.test/static/plots/p.png"}, *p.MediaUrl)
}

func TestSendKeepsExistingPrefix(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewSenderWithAPI(api, "whatsapp:+1").Send(context.Background(), "whatsapp:+2", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+1", *api.params[0].From)
	assert.Equal(t, "whatsapp:+2", *api.params[0].To)
	assert.Nil(t, api.params[0].MediaUrl)
}

func TestSendRejectsEmptyInput(t *testing.T) {
	api := &fakeAPI{}
	s := NewSenderWithAPI(api, "+1")

	_, err := s.Send(context.Background(), "", "hi", "")
	assert.ErrorIs(t, err, ErrNoRecipient)
	_, err = s.Send(context.Background(), "+2", " ", "")
	assert.ErrorIs(t, err, ErrNoBody)
	assert.Empty(t, api.params)
}

func TestSendClassifiesProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"server error", &client.TwilioRestError{Status: http.StatusServiceUnavailable, Code: 20503}, true},
		{"invalid number", &client.TwilioRestError{Status: http.StatusBadRequest, Code: 21211}, false},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSenderWithAPI(&fakeAPI{err: tt.err}, "+1").Send(context.Background(), "+2", "hi", "")
			require.Error(t, err)
			assert.Equal(t, tt.transient, errx.IsTransient(err))
		})
	}
}
