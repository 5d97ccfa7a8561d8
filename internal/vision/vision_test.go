package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	errx "github.com/energy-monitor/server/internal/core/error"
)

type fakeGenerator struct {
	text   string
	err    error
	model  string
	config *genai.GenerateContentConfig
	parts  []*genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 {
		f.parts = contents[0].Parts
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.text, genai.RoleModel)}},
	}, nil
}

var testCfg = Config{Model: "gemini-test", Temperature: 0.1}

const prompt = "Is this a meter? Answer yes or no."

func TestClassifySendsImageAndPrompt(t *testing.T) {
	gen := &fakeGenerator{text: "Yes, this is a meter."}
	got, err := New(gen, testCfg).Classify(context.Background(), []byte{0xff, 0xd8}, prompt)

	require.NoError(t, err)
	assert.Equal(t, "Yes, this is a meter.", got)
	assert.Equal(t, "gemini-test", gen.model)
	require.Len(t, gen.parts, 2)
	assert.Equal(t, prompt, gen.parts[0].Text)
	require.NotNil(t, gen.parts[1].InlineData)
	assert.Equal(t, "image/jpeg", gen.parts[1].InlineData.MIMEType)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *float64
	}{
		{"value", `{"measurement": 12345.67}`, genai.Ptr(12345.67)},
		{"null", `{"measurement": null}`, nil},
		{"missing", `{}`, nil},
		{"empty", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: tt.text}
			got, err := New(gen, testCfg).Extract(context.Background(), []byte("img"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
			assert.NotNil(t, gen.config.ResponseSchema)
		})
	}
}

func TestExtractMalformed(t *testing.T) {
	_, err := New(&fakeGenerator{text: "twelve"}, testCfg).Extract(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Equal(t, errx.KindValidation, errx.KindOf(err))
}

func TestErrorsAreClassified(t *testing.T) {
	unavailable := &fakeGenerator{err: genai.APIError{Code: 503, Message: "overloaded"}}
	_, err := New(unavailable, testCfg).Extract(context.Background(), []byte("img"))
	assert.True(t, errx.IsTransient(err))

	denied := &fakeGenerator{err: genai.APIError{Code: 403, Message: "bad key"}}
	_, err = New(denied, testCfg).Classify(context.Background(), []byte("img"), prompt)
	assert.True(t, errx.IsPermission(err))

	other := &fakeGenerator{err: errors.New("boom")}
	_, err = New(other, testCfg).Classify(context.Background(), []byte("img"), prompt)
	assert.Equal(t, errx.KindUnexpected, errx.KindOf(err))
}
