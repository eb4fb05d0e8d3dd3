package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
)

// ErrResultNotFound is returned when no audit record exists for a main URL.
var ErrResultNotFound = errors.New("result not found")

// ResultRepository persists the per-domain audit records.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Upsert writes the audit record for a main URL, replacing any prior run's
// record wholesale. Re-ingesting the same task is therefore idempotent.
func (r *ResultRepository) Upsert(ctx context.Context, rec *domain.ResultRecord) error {
	subURLs, err := json.Marshal(emptyIfNil(rec.SubURLs))
	if err != nil {
		return fmt.Errorf("failed to marshal sub_urls: %w", err)
	}
	keywords, err := json.Marshal(emptyIfNil(rec.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	categories, err := json.Marshal(emptyIfNil(rec.Categories))
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	upiMap, err := json.Marshal(emptyMapIfNil(rec.UPIMap))
	if err != nil {
		return fmt.Errorf("failed to marshal upi_map: %w", err)
	}

	query := `
		INSERT INTO analysis_results
			(main_url, task_id, sub_urls, keyword_match, categories, upi_map,
			 snippets, total_pages, total_matches, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (main_url) DO UPDATE SET
			task_id       = EXCLUDED.task_id,
			sub_urls      = EXCLUDED.sub_urls,
			keyword_match = EXCLUDED.keyword_match,
			categories    = EXCLUDED.categories,
			upi_map       = EXCLUDED.upi_map,
			snippets      = EXCLUDED.snippets,
			total_pages   = EXCLUDED.total_pages,
			total_matches = EXCLUDED.total_matches,
			updated_at    = NOW()
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		rec.MainURL,
		rec.TaskID,
		subURLs,
		keywords,
		categories,
		upiMap,
		rec.Snippets,
		rec.TotalPages,
		rec.TotalMatches,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	return nil
}

// GetByMainURL retrieves the audit record for a domain.
func (r *ResultRepository) GetByMainURL(ctx context.Context, mainURL string) (*domain.ResultRecord, error) {
	var row struct {
		domain.ResultRecord
		SubURLsJSON    []byte `db:"sub_urls"`
		KeywordsJSON   []byte `db:"keyword_match"`
		CategoriesJSON []byte `db:"categories"`
		UPIMapJSON     []byte `db:"upi_map"`
	}

	query := `
		SELECT main_url, task_id, sub_urls, keyword_match, categories, upi_map,
		       snippets, total_pages, total_matches, created_at, updated_at
		FROM analysis_results
		WHERE main_url = $1
	`

	if err := r.db.GetContext(ctx, &row, query, mainURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	rec := row.ResultRecord
	if err := json.Unmarshal(row.SubURLsJSON, &rec.SubURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sub_urls: %w", err)
	}
	if err := json.Unmarshal(row.KeywordsJSON, &rec.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal(row.CategoriesJSON, &rec.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	if err := json.Unmarshal(row.UPIMapJSON, &rec.UPIMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upi_map: %w", err)
	}

	return &rec, nil
}

// GetByTaskID retrieves the audit record written by a task.
func (r *ResultRepository) GetByTaskID(ctx context.Context, taskID string) (*domain.ResultRecord, error) {
	var mainURL string
	query := `SELECT main_url FROM analysis_results WHERE task_id = $1 LIMIT 1`

	if err := r.db.GetContext(ctx, &mainURL, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return r.GetByMainURL(ctx, mainURL)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMapIfNil(m map[string][]string) map[string][]string {
	if m == nil {
		return map[string][]string{}
	}
	return m
}
