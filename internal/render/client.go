// Package render is the HTTP client for the headless-browser rendering
// microservice. Rendering is an optional enhancement: every caller treats a
// failed or timed-out render as soft and continues with the raw HTML.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRenderFailed indicates the renderer answered but could not produce a
// usable result.
var ErrRenderFailed = errors.New("render failed")

// Default client timeouts; screenshot capture budgets more time because the
// renderer scrolls to every match.
const (
	defaultRenderTimeout     = 60 * time.Second
	defaultScreenshotTimeout = 90 * time.Second
)

// Config holds the renderer endpoint and timeouts.
type Config struct {
	URL               string
	RenderTimeout     time.Duration
	ScreenshotTimeout time.Duration
}

// Client calls the render microservice.
type Client struct {
	cfg        Config
	renderHTTP *http.Client
	shotHTTP   *http.Client
}

// ScreenshotResult is one captured screenshot with the snippets the renderer
// highlighted.
type ScreenshotResult struct {
	PNG      []byte
	Snippets []string
}

type renderRequest struct {
	URL string `json:"url"`
}

type renderResponse struct {
	OK      bool   `json:"ok"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

type screenshotRequest struct {
	URL        string `json:"url"`
	Keyword    string `json:"keyword"`
	MaxMatches int    `json:"max_matches"`
}

type screenshotResponse struct {
	OK            bool   `json:"ok"`
	ScreenshotB64 string `json:"screenshot_b64"`
	Error         string `json:"error"`
	Matches       []struct {
		Snippet string `json:"snippet"`
	} `json:"matches"`
}

// NewClient creates a renderer client.
func NewClient(cfg Config) *Client {
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = defaultRenderTimeout
	}
	if cfg.ScreenshotTimeout <= 0 {
		cfg.ScreenshotTimeout = defaultScreenshotTimeout
	}
	return &Client{
		cfg:        cfg,
		renderHTTP: &http.Client{Timeout: cfg.RenderTimeout},
		shotHTTP:   &http.Client{Timeout: cfg.ScreenshotTimeout},
	}
}

// Render fetches fully-executed HTML for url through the headless browser.
func (c *Client) Render(ctx context.Context, url string) (string, error) {
	var resp renderResponse
	if err := c.post(ctx, c.renderHTTP, "/render", renderRequest{URL: url}, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%w: %s", ErrRenderFailed, resp.Error)
	}
	return resp.Content, nil
}

// Screenshot renders url, scrolls to up to maxMatches occurrences of
// keyword, and returns the captured PNG.
func (c *Client) Screenshot(ctx context.Context, url, keyword string, maxMatches int) (*ScreenshotResult, error) {
	var resp screenshotResponse
	req := screenshotRequest{URL: url, Keyword: keyword, MaxMatches: maxMatches}
	if err := c.post(ctx, c.shotHTTP, "/render-and-screenshot", req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", ErrRenderFailed, resp.Error)
	}

	png, err := base64.StdEncoding.DecodeString(resp.ScreenshotB64)
	if err != nil {
		return nil, fmt.Errorf("%w: decode screenshot: %v", ErrRenderFailed, err)
	}

	result := &ScreenshotResult{PNG: png}
	for _, m := range resp.Matches {
		result.Snippets = append(result.Snippets, m.Snippet)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("renderer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: renderer returned %d", ErrRenderFailed, resp.StatusCode)
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("decode renderer response: %w", decodeErr)
	}
	return nil
}
