// Package mlclient is the HTTP client for the NLP/semantic scoring sidecar.
// The validation gate treats this service as an optional enhancement: when
// it is unreachable the gate fails open.
package mlclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable indicates the scoring service is unreachable or unhealthy.
var ErrUnavailable = errors.New("scoring service unavailable")

// Client is an HTTP client for the scoring sidecar.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a scorer client. timeout <= 0 uses the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Score sends one (keyword, snippet, category) triple to the scorer and
// returns its confidence in [0,1].
func (c *Client) Score(ctx context.Context, keyword, snippet, category string) (float64, error) {
	conf, err := doScore(ctx, c.http, c.baseURL, scoreRequest{
		Keyword:  keyword,
		Snippet:  snippet,
		Category: category,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf, nil
}

// Health probes the scorer's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	reachable, _, _, err := doHealth(ctx, c.http, c.baseURL)
	if err != nil {
		if !reachable {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	return nil
}
