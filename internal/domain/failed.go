package domain

import "time"

// Failure kinds used as DLQ queue discriminators and metric labels.
const (
	FailedKindHit        = "hit"
	FailedKindScreenshot = "screenshot"
)

// FailedHit is a validated hit that could not be queued or flushed. It
// carries everything needed to re-attempt the original enqueue.
type FailedHit struct {
	TaskID         string    `json:"task_id"`
	MainURL        string    `json:"main_url"`
	SubURL         string    `json:"sub_url"`
	Category       string    `json:"category"`
	MatchedKeyword string    `json:"matched_keyword"`
	Snippet        string    `json:"snippet"`
	Source         Source    `json:"source"`
	Confidence     float64   `json:"confident_score"`
	Error          string    `json:"error"`
	RetryCount     int       `json:"retry_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// FailedScreenshot is a screenshot job that overflowed its queue or
// exhausted its in-worker retries.
type FailedScreenshot struct {
	TaskID     string    `json:"task_id"`
	MainURL    string    `json:"main_url"`
	SubURL     string    `json:"sub_url"`
	Keyword    string    `json:"keyword"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewFailedHit wraps a hit for the DLQ with the failure reason attached.
func NewFailedHit(hit ValidatedHit, reason string) FailedHit {
	return FailedHit{
		TaskID:         hit.TaskID,
		MainURL:        hit.MainURL,
		SubURL:         hit.SubURL,
		Category:       hit.Category,
		MatchedKeyword: hit.MatchedKeyword,
		Snippet:        hit.Snippet,
		Source:         hit.Source,
		Confidence:     hit.Confidence,
		Error:          reason,
		RetryCount:     0,
		CreatedAt:      time.Now().UTC(),
	}
}

// Hit reconstructs the original hit from a DLQ entry for re-enqueueing.
func (f FailedHit) Hit() ValidatedHit {
	return ValidatedHit{
		TaskID:         f.TaskID,
		MainURL:        f.MainURL,
		SubURL:         f.SubURL,
		Category:       f.Category,
		MatchedKeyword: f.MatchedKeyword,
		Snippet:        f.Snippet,
		Source:         f.Source,
		Confidence:     f.Confidence,
		CreatedAt:      f.CreatedAt,
	}
}

// NewFailedScreenshot wraps a screenshot job for the DLQ.
func NewFailedScreenshot(job ScreenshotJob, reason string) FailedScreenshot {
	return FailedScreenshot{
		TaskID:    job.TaskID,
		MainURL:   job.MainURL,
		SubURL:    job.SubURL,
		Keyword:   job.Keyword,
		Error:     reason,
		CreatedAt: time.Now().UTC(),
	}
}

// Job reconstructs the original screenshot job from a DLQ entry.
func (f FailedScreenshot) Job() ScreenshotJob {
	return ScreenshotJob{
		TaskID:  f.TaskID,
		MainURL: f.MainURL,
		SubURL:  f.SubURL,
		Keyword: f.Keyword,
	}
}
