package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
)

// hitInsertColumns is the column count of one VALUES tuple in BulkInsert.
const hitInsertColumns = 8

// HitRepository persists validated hits.
type HitRepository struct {
	db *sqlx.DB
}

// NewHitRepository creates a new hit repository.
func NewHitRepository(db *sqlx.DB) *HitRepository {
	return &HitRepository{db: db}
}

// BulkInsert writes a batch of hits in a single multi-row INSERT. The batch
// succeeds or fails as a whole.
func (r *HitRepository) BulkInsert(ctx context.Context, hits []domain.ValidatedHit) error {
	if len(hits) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(hits))
	args := make([]any, 0, len(hits)*hitInsertColumns)
	for i, hit := range hits {
		base := i * hitInsertColumns
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			hit.TaskID,
			hit.MainURL,
			hit.SubURL,
			hit.Category,
			hit.MatchedKeyword,
			hit.Snippet,
			hit.Source,
			hit.Confidence,
		)
	}

	query := `
		INSERT INTO analysis_hits
			(task_id, main_url, sub_url, category, matched_keyword, snippet, source, confident_score)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert hits: %w", err)
	}

	return nil
}

// AttachScreenshot sets the screenshot path on the newest hit for
// (task_id, sub_url, keyword) that does not have one yet. Returns false when
// no such row exists, which is not an error: the hit may still be waiting in
// the flush queue.
func (r *HitRepository) AttachScreenshot(ctx context.Context, taskID, subURL, keyword, path string) (bool, error) {
	query := `
		UPDATE analysis_hits
		SET screenshot_path = $1
		WHERE id = (
			SELECT id FROM analysis_hits
			WHERE task_id = $2 AND sub_url = $3 AND matched_keyword = $4
			      AND screenshot_path IS NULL
			ORDER BY id DESC
			LIMIT 1
		)
	`

	result, err := r.db.ExecContext(ctx, query, path, taskID, subURL, keyword)
	if err != nil {
		return false, fmt.Errorf("failed to attach screenshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountByTask returns the number of persisted hits for a task.
func (r *HitRepository) CountByTask(ctx context.Context, taskID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM analysis_hits WHERE task_id = $1`

	if err := r.db.GetContext(ctx, &count, query, taskID); err != nil {
		return 0, fmt.Errorf("failed to count hits: %w", err)
	}

	return count, nil
}

// ListByTask retrieves a task's hits, newest first.
func (r *HitRepository) ListByTask(ctx context.Context, taskID string, limit, offset int) ([]domain.ValidatedHit, error) {
	var hits []domain.ValidatedHit
	query := `
		SELECT id, task_id, main_url, sub_url, category, matched_keyword,
		       snippet, source, confident_score, screenshot_path, created_at
		FROM analysis_hits
		WHERE task_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`

	if err := r.db.SelectContext(ctx, &hits, query, taskID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list hits: %w", err)
	}

	if hits == nil {
		hits = []domain.ValidatedHit{}
	}

	return hits, nil
}
