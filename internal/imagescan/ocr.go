package imagescan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OCRClient talks to the OCR sidecar. The sidecar accepts raw image bytes
// and responds with the recognized text.
type OCRClient struct {
	baseURL string
	http    *http.Client
}

// NewOCRClient creates a client for the sidecar at baseURL.
func NewOCRClient(baseURL string, timeout time.Duration) *OCRClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OCRClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type ocrResponse struct {
	Text string `json:"text"`
}

// Recognize submits image bytes and returns the recognized text.
func (c *OCRClient) Recognize(ctx context.Context, img []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr request: status %d", resp.StatusCode)
	}

	var body ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return body.Text, nil
}
