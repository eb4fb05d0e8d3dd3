package domain

import "time"

// Source identifies which matcher produced a candidate.
type Source string

const (
	// SourceRegex marks corpus regex and cryptocurrency address matches.
	SourceRegex Source = "regex"
	// SourceAlias marks alias/brand substring matches.
	SourceAlias Source = "alias"
	// SourceContext marks payment-handle matches found via context patterns.
	SourceContext Source = "context"
	// SourceQR marks matches decoded from QR codes in page images.
	SourceQR Source = "qr"
	// SourceOCR marks matches recovered from image text.
	SourceOCR Source = "ocr"
)

// MatchCandidate is a raw textual match before validation. Candidates are
// always counted in the task's ResultRecord whether or not they later pass
// the validation gate.
type MatchCandidate struct {
	Term     string  `json:"term"`
	Category string  `json:"category"`
	Snippet  string  `json:"snippet"`
	Source   Source  `json:"source"`
	Score    float64 `json:"score"`
}

// ValidatedHit is a candidate that passed the validation gate. Hits are
// persisted individually and may later be enriched with a screenshot path.
type ValidatedHit struct {
	ID             int64     `db:"id"              json:"id,omitempty"`
	TaskID         string    `db:"task_id"         json:"task_id"`
	MainURL        string    `db:"main_url"        json:"main_url"`
	SubURL         string    `db:"sub_url"         json:"sub_url"`
	Category       string    `db:"category"        json:"category"`
	MatchedKeyword string    `db:"matched_keyword" json:"matched_keyword"`
	Snippet        string    `db:"snippet"         json:"snippet"`
	Source         Source    `db:"source"          json:"source"`
	Confidence     float64   `db:"confident_score" json:"confident_score"`
	ScreenshotPath *string   `db:"screenshot_path" json:"screenshot_path,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}

// ScreenshotJob is a queued evidence-capture request, produced when a hit
// clears the screenshot confidence gate.
type ScreenshotJob struct {
	TaskID  string `json:"task_id"`
	MainURL string `json:"main_url"`
	SubURL  string `json:"sub_url"`
	Keyword string `json:"keyword"`
}
