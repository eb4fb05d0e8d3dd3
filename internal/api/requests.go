package api

import (
	"github.com/google/uuid"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
)

// analyzeRequest is the wire form of a page batch. Producers in the field
// speak several dialects of this payload, so every field carries its legacy
// aliases; normalization happens once here and nowhere else.
type analyzeRequest struct {
	TaskID   string `json:"task_id"`
	LegacyID string `json:"id"`
	MainURL  string `json:"main_url"`

	// BatchNum and IsComplete are pointers so a legacy single-shot payload
	// (no batch fields at all) is distinguishable from batch 0.
	BatchNum   *int  `json:"batch_num"`
	IsComplete *bool `json:"is_complete"`

	Pages       []analyzePage `json:"pages"`
	PagesLegacy []analyzePage `json:"Pages"`
}

type analyzePage struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`

	HTML        string `json:"html"`
	HTMLUpper   string `json:"HTML"`
	HTMLContent string `json:"html_content"`
	HTMLCamel   string `json:"htmlContent"`
	Body        string `json:"body"`

	FetchError  string `json:"fetch_error"`
	ContentType string `json:"content_type"`
}

// toBatch normalizes the request into the canonical batch form. A missing
// task id gets a generated one; a payload without batch fields is treated
// as batch 1 of 1, complete.
func (r *analyzeRequest) toBatch() *domain.PageBatch {
	taskID := firstNonEmpty(r.TaskID, r.LegacyID)
	if taskID == "" {
		taskID = uuid.NewString()
	}

	batchNum := 1
	isComplete := true
	if r.BatchNum != nil {
		batchNum = *r.BatchNum
		isComplete = r.IsComplete != nil && *r.IsComplete
	} else if r.IsComplete != nil {
		isComplete = *r.IsComplete
	}

	rawPages := r.Pages
	if len(rawPages) == 0 {
		rawPages = r.PagesLegacy
	}

	pages := make([]domain.PageRecord, 0, len(rawPages))
	for _, p := range rawPages {
		pages = append(pages, domain.PageRecord{
			// final_url is the post-redirect address and wins over url.
			URL:         firstNonEmpty(p.FinalURL, p.URL),
			HTML:        firstNonEmpty(p.HTML, p.HTMLUpper, p.HTMLContent, p.HTMLCamel, p.Body),
			FetchError:  p.FetchError,
			ContentType: p.ContentType,
		})
	}

	mainURL := r.MainURL
	if mainURL == "" && len(pages) > 0 {
		mainURL = pages[0].URL
	}

	return &domain.PageBatch{
		TaskID:     taskID,
		MainURL:    mainURL,
		BatchNum:   batchNum,
		Pages:      pages,
		IsComplete: isComplete,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
