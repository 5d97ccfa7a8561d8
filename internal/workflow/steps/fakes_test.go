package steps

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	errx "github.com/energy-monitor/server/internal/core/error"
	"github.com/energy-monitor/server/internal/retry"
)

var fastRetry = retry.Policy{Name: "test", MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1}

func unavailable() error {
	return errx.New(errors.New("service unavailable"), http.StatusServiceUnavailable, errx.UpstreamErrorMessage)
}

type fakeFetcher struct {
	data  []byte
	errs  []error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

type fakeVision struct {
	answer     string
	classifyEr error
	value      *float64
	extractEr  []error
	classified int
	extracted  int
	onClassify func()
	onExtract  func()
}

func (f *fakeVision) Classify(context.Context, []byte, string) (string, error) {
	f.classified++
	if f.onClassify != nil {
		f.onClassify()
	}
	return f.answer, f.classifyEr
}

func (f *fakeVision) Extract(context.Context, []byte) (*float64, error) {
	f.extracted++
	if f.onExtract != nil {
		f.onExtract()
	}
	if len(f.extractEr) > 0 {
		err := f.extractEr[0]
		f.extractEr = f.extractEr[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.value, nil
}

type upsert struct {
	date   time.Time
	value  float64
	source string
}

type fakeStore struct {
	mu       sync.Mutex
	exists   bool
	existsEr error
	createEr error
	errs     []error
	created  int
	upserts  []upsert
	attempts int
}

func (f *fakeStore) TableExists(context.Context) (bool, error) {
	return f.exists, f.existsEr
}

func (f *fakeStore) CreateTable(context.Context) error {
	if f.createEr != nil {
		return f.createEr
	}
	f.created++
	f.exists = true
	return nil
}

func (f *fakeStore) UpsertByDate(_ context.Context, date time.Time, value float64, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.upserts = append(f.upserts, upsert{date: date, value: value, source: source})
	return nil
}

type fakeAgent struct {
	out   []*schema.Message
	errs  []error
	calls int
	seen  []*schema.Message
}

func (f *fakeAgent) Invoke(_ context.Context, history []*schema.Message) ([]*schema.Message, error) {
	f.calls++
	f.seen = history
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

type sent struct {
	to, text, media string
}

type fakeSender struct {
	errs  []error
	calls int
	sent  []sent
}

func (f *fakeSender) Send(_ context.Context, to, text, media string) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, sent{to: to, text: text, media: media})
	return "SM-test", nil
}

func ptr[T any](v T) *T { return &v }
