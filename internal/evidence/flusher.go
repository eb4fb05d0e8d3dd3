package evidence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

const (
	defaultFlushBatch    = 50
	defaultFlushInterval = 2 * time.Second
	defaultFlushTimeout  = 10 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// HitInserter persists hit batches.
type HitInserter interface {
	BulkInsert(ctx context.Context, hits []domain.ValidatedHit) error
}

// HitIndexer mirrors flushed batches into the search index. Indexing is
// best-effort and never blocks or fails a flush.
type HitIndexer interface {
	IndexHits(ctx context.Context, hits []domain.ValidatedHit)
	Enabled() bool
}

// FlusherConfig tunes the batch writer.
type FlusherConfig struct {
	Batch    int
	Interval time.Duration
	Timeout  time.Duration
}

// Flusher drains the hit queue into Postgres in batches. A failed batch goes
// to the DLQ whole; partial writes never happen because BulkInsert is a
// single statement.
type Flusher struct {
	repo    HitInserter
	indexer HitIndexer
	hits    <-chan domain.ValidatedHit
	dlq     DeadLetter
	cfg     FlusherConfig
	metrics *telemetry.Metrics
	logger  logger.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewFlusher creates a flusher over the recorder's hit queue.
func NewFlusher(repo HitInserter, hits <-chan domain.ValidatedHit, dlq DeadLetter, cfg FlusherConfig, metrics *telemetry.Metrics, log logger.Logger) *Flusher {
	if cfg.Batch <= 0 {
		cfg.Batch = defaultFlushBatch
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultFlushInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFlushTimeout
	}
	return &Flusher{
		repo:     repo,
		hits:     hits,
		dlq:      dlq,
		cfg:      cfg,
		metrics:  metrics,
		logger:   log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// SetIndexer enables search mirroring of flushed batches. Call before Start.
func (f *Flusher) SetIndexer(indexer HitIndexer) {
	f.indexer = indexer
}

// Start launches the flush loop.
func (f *Flusher) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	go f.run(ctx)

	f.logger.Info("hit flusher started",
		logger.Int("batch", f.cfg.Batch),
		logger.Duration("interval", f.cfg.Interval))
}

// Stop drains whatever is buffered and queued, then returns. Bounded by the
// drain timeout so shutdown cannot hang on a dead database.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	close(f.stopChan)
	select {
	case <-f.doneChan:
		f.logger.Info("hit flusher stopped")
	case <-time.After(defaultDrainTimeout):
		f.logger.Warn("hit flusher drain timed out")
	}
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.doneChan)

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	batch := make([]domain.ValidatedHit, 0, f.cfg.Batch)

	for {
		select {
		case hit := <-f.hits:
			batch = append(batch, hit)
			f.metrics.HitQueueDepth.Set(float64(len(f.hits)))
			if len(batch) >= f.cfg.Batch {
				f.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				f.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-f.stopChan:
			f.drain(ctx, batch)
			return
		case <-ctx.Done():
			f.drain(context.Background(), batch)
			return
		}
	}
}

// drain empties the queue and writes the final batches.
func (f *Flusher) drain(ctx context.Context, batch []domain.ValidatedHit) {
	for {
		select {
		case hit := <-f.hits:
			batch = append(batch, hit)
			if len(batch) >= f.cfg.Batch {
				f.flush(ctx, batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				f.flush(ctx, batch)
			}
			return
		}
	}
}

func (f *Flusher) flush(ctx context.Context, batch []domain.ValidatedHit) {
	start := time.Now()

	flushCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	err := f.repo.BulkInsert(flushCtx, batch)
	f.metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		f.metrics.HitsProcessed.Add(float64(len(batch)))
		if f.indexer != nil && f.indexer.Enabled() {
			f.indexer.IndexHits(flushCtx, batch)
		}
		f.logger.Debug("flushed hits",
			logger.Int("count", len(batch)),
			logger.Duration("took", time.Since(start)))
		return
	}

	reason := "db_insert: " + err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "db_flush_timeout"
		f.metrics.DBTimeouts.Inc()
	}

	f.logger.Error("hit flush failed, routing batch to dlq",
		logger.Int("count", len(batch)),
		logger.String("reason", reason),
		logger.Error(err))

	for _, hit := range batch {
		f.metrics.HitsDropped.Inc()
		if dlqErr := f.dlq.PushHit(ctx, domain.NewFailedHit(hit, reason)); dlqErr != nil {
			f.logger.Error("hit lost: flush failed and dlq unreachable",
				logger.String("task_id", hit.TaskID),
				logger.String("keyword", hit.MatchedKeyword),
				logger.Error(dlqErr))
		}
	}
}
