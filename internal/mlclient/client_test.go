package mlclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/mlclient"
)

func TestScore(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Keyword  string `json:"keyword"`
			Snippet  string `json:"snippet"`
			Category string `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Keyword != "weed" || req.Category != "narcotics" {
			t.Errorf("request = %+v, want keyword/category passed through", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"confidence": 0.82})
	}))
	defer srv.Close()

	c := mlclient.NewClient(srv.URL, time.Second)
	got, err := c.Score(context.Background(), "weed", "buy weed here", "narcotics")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got != 0.82 {
		t.Errorf("Score() = %v, want 0.82", got)
	}
}

func TestScoreClampsConfidence(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{"confidence": 1.7})
	}))
	defer srv.Close()

	c := mlclient.NewClient(srv.URL, time.Second)
	got, err := c.Score(context.Background(), "k", "s", "c")
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got != 1.0 {
		t.Errorf("Score() = %v, want clamped to 1.0", got)
	}
}

func TestScoreUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // closed server: connection refused

	c := mlclient.NewClient(srv.URL, time.Second)
	_, err := c.Score(context.Background(), "k", "s", "c")
	if !errors.Is(err, mlclient.ErrUnavailable) {
		t.Errorf("Score() error = %v, want ErrUnavailable", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"model_version": "v3"})
	}))
	defer srv.Close()

	c := mlclient.NewClient(srv.URL, time.Second)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}
