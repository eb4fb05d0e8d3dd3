// Package search mirrors analysis results into Elasticsearch for the
// review dashboard. Indexing is best effort: Postgres remains the system
// of record and every search failure is logged and swallowed.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/config"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

// Indexer writes task summaries and validated hits to Elasticsearch.
// A disabled indexer is a valid no-op value.
type Indexer struct {
	client       *es.Client
	resultsIndex string
	matchesIndex string
	logger       logger.Logger
}

// New creates an indexer. A disabled config yields a no-op indexer.
func New(cfg config.ElasticsearchConfig, log logger.Logger) (*Indexer, error) {
	idx := &Indexer{
		resultsIndex: cfg.ResultsIndex,
		matchesIndex: cfg.MatchesIndex,
		logger:       log,
	}
	if !cfg.Enabled {
		log.Info("search indexing disabled")
		return idx, nil
	}

	client, err := es.NewClient(es.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	idx.client = client

	log.Info("search indexer initialized",
		logger.String("url", cfg.URL),
		logger.String("results_index", cfg.ResultsIndex),
		logger.String("matches_index", cfg.MatchesIndex))

	return idx, nil
}

// Enabled reports whether documents actually go anywhere.
func (i *Indexer) Enabled() bool {
	return i.client != nil
}

// IndexTaskSummary indexes the per-task summary keyed by task ID, so a
// re-run of the same task overwrites its prior summary.
func (i *Indexer) IndexTaskSummary(ctx context.Context, summary *domain.TaskSummary) {
	if !i.Enabled() {
		return
	}

	doc, err := json.Marshal(summary)
	if err != nil {
		i.logger.Warn("failed to marshal task summary",
			logger.String("task_id", summary.TaskID),
			logger.Error(err))
		return
	}

	res, err := i.client.Index(
		i.resultsIndex,
		bytes.NewReader(doc),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(summary.TaskID),
	)
	if err != nil {
		i.logger.Warn("failed to index task summary",
			logger.String("task_id", summary.TaskID),
			logger.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		i.logger.Warn("task summary index error",
			logger.String("task_id", summary.TaskID),
			logger.String("response", res.String()))
	}
}

// IndexHits bulk-indexes validated hits with autogenerated document IDs.
func (i *Indexer) IndexHits(ctx context.Context, hits []domain.ValidatedHit) {
	if !i.Enabled() || len(hits) == 0 {
		return
	}

	var buf bytes.Buffer
	meta := map[string]map[string]string{
		"index": {"_index": i.matchesIndex},
	}
	for idx := range hits {
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			i.logger.Warn("failed to encode bulk meta", logger.Error(err))
			return
		}
		if err := json.NewEncoder(&buf).Encode(&hits[idx]); err != nil {
			i.logger.Warn("failed to encode hit", logger.Error(err))
			return
		}
	}

	res, err := i.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		i.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		i.logger.Warn("bulk hit indexing failed",
			logger.Int("hits", len(hits)),
			logger.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		i.logger.Warn("bulk hit indexing error",
			logger.Int("hits", len(hits)),
			logger.String("response", res.String()))
	}
}

// HealthCheck verifies cluster reachability. A disabled indexer is healthy.
func (i *Indexer) HealthCheck(ctx context.Context) error {
	if !i.Enabled() {
		return nil
	}

	res, err := i.client.Info(i.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch health check: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch health check: %s", res.String())
	}
	return nil
}
