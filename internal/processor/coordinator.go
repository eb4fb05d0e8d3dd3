package processor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/validate"
)

const defaultChunkSize = 20

// ResultStore persists the final audit record.
type ResultStore interface {
	Upsert(ctx context.Context, rec *domain.ResultRecord) error
}

// SummaryIndexer mirrors summaries into the search store, best effort.
type SummaryIndexer interface {
	IndexTaskSummary(ctx context.Context, summary *domain.TaskSummary)
}

// HitRecorder accepts validated hits and owns per-task dedup state.
type HitRecorder interface {
	RecordHit(ctx context.Context, hit domain.ValidatedHit)
	ResetTask(mainURL string)
	FinishTask(mainURL string)
}

// HTMLArchiver stores raw page HTML for pages that produced candidates.
type HTMLArchiver interface {
	PutArchivedHTML(ctx context.Context, taskID, pageURL, html string) (string, error)
	Enabled() bool
}

// Coordinator is the ingestion entry point. One call per batch; the caller
// always gets a summary back, never a page-level error.
type Coordinator struct {
	store     *AccumulatorStore
	pipeline  *Pipeline
	gate      *validate.Gate
	recorder  HitRecorder
	results   ResultStore
	search    SummaryIndexer // nil disables indexing
	archiver  HTMLArchiver   // nil disables HTML archiving
	sem       chan struct{}
	chunkSize int
	metrics   *telemetry.Metrics
	logger    logger.Logger
}

// NewCoordinator wires the coordinator. pageConcurrency bounds pages in
// flight across all tasks.
func NewCoordinator(
	store *AccumulatorStore,
	pipeline *Pipeline,
	gate *validate.Gate,
	recorder HitRecorder,
	results ResultStore,
	search SummaryIndexer,
	pageConcurrency int,
	chunkSize int,
	metrics *telemetry.Metrics,
	log logger.Logger,
) *Coordinator {
	if pageConcurrency <= 0 {
		pageConcurrency = 8
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Coordinator{
		store:     store,
		pipeline:  pipeline,
		gate:      gate,
		recorder:  recorder,
		results:   results,
		search:    search,
		sem:       make(chan struct{}, pageConcurrency),
		chunkSize: chunkSize,
		metrics:   metrics,
		logger:    log,
	}
}

// Ingest processes one batch and returns the task summary: incremental
// while batches are still expected, final once IsComplete lands.
func (c *Coordinator) Ingest(ctx context.Context, batch *domain.PageBatch) *domain.TaskSummary {
	start := time.Now()
	defer func() {
		c.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	if batch.BatchNum <= 1 {
		c.store.Reset(batch.TaskID, batch.MainURL)
		c.recorder.ResetTask(batch.MainURL)
	}
	c.metrics.TasksInflight.Set(float64(c.store.Len()))

	c.logger.Info("batch accepted",
		logger.String("task_id", batch.TaskID),
		logger.String("main_url", batch.MainURL),
		logger.Int("batch_num", batch.BatchNum),
		logger.Int("pages", len(batch.Pages)),
		logger.Bool("is_complete", batch.IsComplete))

	for offset := 0; offset < len(batch.Pages); offset += c.chunkSize {
		end := offset + c.chunkSize
		if end > len(batch.Pages) {
			end = len(batch.Pages)
		}
		c.processChunk(ctx, batch, batch.Pages[offset:end])
	}

	if !batch.IsComplete {
		summary := c.store.Snapshot(batch.TaskID)
		if summary == nil {
			summary = &domain.TaskSummary{
				TaskID:  batch.TaskID,
				MainURL: batch.MainURL,
				Status:  domain.StatusProcessing,
			}
		}
		return summary
	}

	return c.finalize(ctx, batch)
}

// processChunk fans the chunk's pages out over the shared semaphore.
func (c *Coordinator) processChunk(ctx context.Context, batch *domain.PageBatch, pages []domain.PageRecord) {
	var wg sync.WaitGroup
	for i := range pages {
		page := pages[i]

		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		wg.Add(1)
		go func() {
			defer func() {
				<-c.sem
				wg.Done()
			}()
			defer func() {
				if r := recover(); r != nil {
					c.metrics.PageFailures.Inc()
					c.logger.Error("page worker panicked",
						logger.String("task_id", batch.TaskID),
						logger.String("sub_url", page.URL),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())))
				}
			}()

			c.processPage(ctx, batch, page)
		}()
	}
	wg.Wait()
}

// processPage matches one page, gates its candidates, and folds the result
// into the task accumulator. Every candidate counts toward the audit
// record; only gated ones become persisted hits.
func (c *Coordinator) processPage(ctx context.Context, batch *domain.PageBatch, page domain.PageRecord) {
	candidates := c.pipeline.ProcessPage(ctx, page)

	if len(candidates) > 0 {
		c.archivePage(ctx, batch.TaskID, page)
	}

	for _, cand := range candidates {
		gateScore := c.gate.Score(ctx, cand.Term, cand.Snippet, cand.Category)
		c.metrics.ValidationScore.Observe(gateScore)

		confidence := gateScore * cand.Score
		if !c.gate.Passes(confidence) {
			c.logger.Debug("candidate below validation threshold",
				logger.String("task_id", batch.TaskID),
				logger.String("term", cand.Term),
				logger.Float64("confidence", confidence))
			continue
		}

		c.recorder.RecordHit(ctx, domain.ValidatedHit{
			TaskID:         batch.TaskID,
			MainURL:        batch.MainURL,
			SubURL:         page.URL,
			Category:       cand.Category,
			MatchedKeyword: cand.Term,
			Snippet:        cand.Snippet,
			Source:         cand.Source,
			Confidence:     confidence,
		})
	}

	c.store.Fold(batch.TaskID, batch.MainURL, pageResult{
		subURL:     page.URL,
		candidates: candidates,
	})
}

// SetArchiver enables best-effort archiving of the raw HTML of pages that
// produced candidates.
func (c *Coordinator) SetArchiver(archiver HTMLArchiver) {
	c.archiver = archiver
}

// archivePage stores the page HTML alongside the evidence, best effort.
func (c *Coordinator) archivePage(ctx context.Context, taskID string, page domain.PageRecord) {
	if c.archiver == nil || !c.archiver.Enabled() || page.HTML == "" {
		return
	}
	if _, err := c.archiver.PutArchivedHTML(ctx, taskID, page.URL, page.HTML); err != nil {
		c.logger.Debug("html archive failed",
			logger.String("task_id", taskID),
			logger.String("sub_url", page.URL),
			logger.Error(err))
	}
}

// finalize persists the audit record and tears down per-task state.
func (c *Coordinator) finalize(ctx context.Context, batch *domain.PageBatch) *domain.TaskSummary {
	acc := c.store.Finalize(batch.TaskID)
	if acc == nil {
		acc = newAccumulator(batch.TaskID, batch.MainURL, 0)
	}
	c.metrics.TasksInflight.Set(float64(c.store.Len()))

	rec := acc.Record()
	if err := c.results.Upsert(ctx, rec); err != nil {
		c.logger.Error("failed to persist audit record",
			logger.String("task_id", batch.TaskID),
			logger.String("main_url", batch.MainURL),
			logger.Error(err))
	}

	summary := acc.Snapshot(domain.StatusCompleted)
	if c.search != nil {
		c.search.IndexTaskSummary(ctx, summary)
	}

	c.recorder.FinishTask(batch.MainURL)

	c.logger.Info("task completed",
		logger.String("task_id", batch.TaskID),
		logger.String("main_url", batch.MainURL),
		logger.Int("total_pages", summary.TotalPages),
		logger.Int("total_matches", summary.TotalMatches),
		logger.Strings("categories", summary.Categories))

	return summary
}

// TaskSnapshot returns the in-flight summary for a task, or nil once the
// task has completed (the record then lives in Postgres).
func (c *Coordinator) TaskSnapshot(taskID string) *domain.TaskSummary {
	return c.store.Snapshot(taskID)
}

// InflightCount returns the number of tasks currently accumulating.
func (c *Coordinator) InflightCount() int {
	return c.store.Len()
}
