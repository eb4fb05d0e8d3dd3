package render_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/render"
)

func TestRender(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.URL != "https://spa.example.com" {
			t.Errorf("url = %q, want request url forwarded", req.URL)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"content": "<html><body>rendered</body></html>",
		})
	}))
	defer srv.Close()

	c := render.NewClient(render.Config{URL: srv.URL, RenderTimeout: time.Second})
	html, err := c.Render(context.Background(), "https://spa.example.com")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if html != "<html><body>rendered</body></html>" {
		t.Errorf("Render() = %q, want rendered content", html)
	}
}

func TestRenderNotOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "navigation timeout"})
	}))
	defer srv.Close()

	c := render.NewClient(render.Config{URL: srv.URL, RenderTimeout: time.Second})
	_, err := c.Render(context.Background(), "https://slow.example.com")
	if !errors.Is(err, render.ErrRenderFailed) {
		t.Errorf("Render() error = %v, want ErrRenderFailed", err)
	}
}

func TestScreenshot(t *testing.T) {
	t.Parallel()

	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render-and-screenshot" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":             true,
			"screenshot_b64": base64.StdEncoding.EncodeToString(png),
			"matches":        []map[string]string{{"snippet": "buy weed"}},
		})
	}))
	defer srv.Close()

	c := render.NewClient(render.Config{URL: srv.URL, ScreenshotTimeout: time.Second})
	got, err := c.Screenshot(context.Background(), "https://shop.example.com", "weed", 5)
	if err != nil {
		t.Fatalf("Screenshot() error = %v", err)
	}
	if string(got.PNG) != string(png) {
		t.Errorf("PNG = %v, want decoded bytes", got.PNG)
	}
	if len(got.Snippets) != 1 || got.Snippets[0] != "buy weed" {
		t.Errorf("Snippets = %v, want matched snippet", got.Snippets)
	}
}

func TestScreenshotBadBase64(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "screenshot_b64": "!!!"})
	}))
	defer srv.Close()

	c := render.NewClient(render.Config{URL: srv.URL})
	_, err := c.Screenshot(context.Background(), "https://x.example.com", "k", 1)
	if !errors.Is(err, render.ErrRenderFailed) {
		t.Errorf("Screenshot() error = %v, want ErrRenderFailed", err)
	}
}
