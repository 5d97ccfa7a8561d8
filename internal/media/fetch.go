// Package media downloads inbound message attachments.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errx "github.com/energy-monitor/server/internal/core/error"
)

// MaxSize bounds a downloaded attachment.
const MaxSize = 16 << 20

// Fetcher performs authenticated GETs against the messaging provider's
// media URLs.
type Fetcher struct {
	client   *http.Client
	username string
	password string
}

// NewFetcher returns a Fetcher using basic auth. A nil client gets a 10s
// timeout.
func NewFetcher(client *http.Client, username, password string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{client: client, username: username, password: password}
}

// Fetch returns the body of url. Non-2xx responses and network failures are
// returned as classified errx errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errx.Validation(err, "invalid media url")
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errx.WrapUpstream(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, errx.WrapUpstream(fmt.Errorf("media fetch: unexpected status %d", resp.StatusCode), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, errx.WrapUpstream(err, http.StatusBadGateway)
	}
	if len(body) > MaxSize {
		return nil, errx.Validation(fmt.Errorf("media fetch: body exceeds %d bytes", MaxSize), "attachment too large")
	}
	return body, nil
}
