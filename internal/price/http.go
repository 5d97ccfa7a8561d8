package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	errx "github.com/energy-monitor/server/internal/core/error"
)

// priceFields are tried in order when decoding an API response.
var priceFields = []string{"price", "value", "rate", "tariff"}

// HTTPFetcher reads a JSON object exposing the price under one of a few
// common field names.
type HTTPFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPFetcher returns nil when url is empty.
func NewHTTPFetcher(url string, client *http.Client) *HTTPFetcher {
	if url == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPFetcher{url: url, client: client}
}

// Fetch returns nil without error on a nil receiver.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*float64, error) {
	if f == nil {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errx.WrapUpstream(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errx.WrapUpstream(fmt.Errorf("price api: unexpected status %d", resp.StatusCode), resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errx.Validation(err, "malformed price response")
	}
	for _, field := range priceFields {
		v, ok := body[field]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return &n, nil
		case string:
			if p, err := strconv.ParseFloat(n, 64); err == nil {
				return &p, nil
			}
		}
	}
	return nil, nil
}
