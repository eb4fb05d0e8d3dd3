package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 5 * time.Second

// scoreRequest is the request body for POST /score.
type scoreRequest struct {
	Keyword  string `json:"keyword"`
	Snippet  string `json:"snippet"`
	Category string `json:"category"`
}

// scoreResponse is the response body from POST /score.
type scoreResponse struct {
	Confidence float64 `json:"confidence"`
}

// healthResponse is the JSON shape returned by GET /health.
type healthResponse struct {
	ModelVersion string `json:"model_version"`
}

func doScore(ctx context.Context, client *http.Client, baseURL string, req scoreRequest) (float64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer returned %d", resp.StatusCode)
	}

	var result scoreResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return 0, fmt.Errorf("decode response: %w", decodeErr)
	}
	return result.Confidence, nil
}

// doHealth calls GET /health and returns reachable, latency, and any model
// version the scorer reports.
func doHealth(ctx context.Context, client *http.Client, baseURL string) (reachable bool, latency time.Duration, modelVersion string, err error) {
	start := time.Now()

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", http.NoBody)
	if reqErr != nil {
		return false, 0, "", fmt.Errorf("create request: %w", reqErr)
	}

	resp, doErr := client.Do(httpReq)
	latency = time.Since(start)
	if doErr != nil {
		return false, latency, "", fmt.Errorf("service unreachable: %w", doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, latency, "", fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}

	var health healthResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&health); decodeErr == nil {
		modelVersion = health.ModelVersion
	}
	return true, latency, modelVersion, nil
}
