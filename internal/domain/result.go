package domain

import "time"

// Task status values returned in ingestion summaries.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// ResultRecord is the master per-domain audit record, exactly one row per
// main_url. It counts every MatchCandidate, not just validated hits.
type ResultRecord struct {
	MainURL    string   `db:"main_url"`
	TaskID     string   `db:"task_id"`
	SubURLs    []string `db:"-"`
	Keywords   []string `db:"-"`
	Categories []string `db:"-"`
	// UPIMap aggregates payment handles against the domains they were
	// found on, across the whole task.
	UPIMap       map[string][]string `db:"-"`
	Snippets     string              `db:"snippets"`
	TotalPages   int                 `db:"total_pages"`
	TotalMatches int                 `db:"total_matches"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

// TaskSummary is the Coordinator's return value for one ingested batch.
type TaskSummary struct {
	TaskID       string   `json:"task_id"`
	MainURL      string   `json:"main_url"`
	TotalPages   int      `json:"total_pages"`
	TotalMatches int      `json:"total_matches"`
	Categories   []string `json:"categories"`
	Status       string   `json:"status"`
}

// DomainStat is the render-escalation learning state for one domain.
type DomainStat struct {
	Domain        string `json:"domain"`
	Seen          int64  `json:"seen"`
	RenderSuccess int64  `json:"render_success"`
	Escalated     bool   `json:"escalated"`
}
