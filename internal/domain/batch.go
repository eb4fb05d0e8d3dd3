// Package domain contains the core domain models for the analyzer service.
package domain

import (
	"net/url"
	"strings"
)

// PageBatch is one canonical ingestion payload: a slice of a task's pages.
// A task may arrive as several batches; BatchNum starts at 1 and IsComplete
// marks the final batch. Legacy single-shot payloads are normalized to
// batch 1 of 1, complete, before they reach the pipeline.
type PageBatch struct {
	TaskID     string       `json:"task_id"`
	MainURL    string       `json:"main_url"`
	BatchNum   int          `json:"batch_num"`
	Pages      []PageRecord `json:"pages"`
	IsComplete bool         `json:"is_complete"`
}

// PageRecord is one fetched page within a batch.
type PageRecord struct {
	URL         string `json:"url"`
	HTML        string `json:"html"`
	FetchError  string `json:"error,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Domain extracts the registrable host of a URL, lowercased, without port.
// Returns "" when the URL does not parse.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	return strings.ToLower(host)
}
