package dlq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

const defaultSweepInterval = 60 * time.Second

// Requeuer re-admits recovered entries into the hot-path queues. Both
// methods are non-blocking and report whether the entry was accepted.
type Requeuer interface {
	RequeueHit(hit domain.ValidatedHit) bool
	RequeueScreenshot(job domain.ScreenshotJob) bool
}

// Sweeper drains the dead-letter queues slowly, one entry per queue per
// tick, so recovery never competes with live traffic for queue capacity.
type Sweeper struct {
	queue      *Queue
	requeuer   Requeuer
	interval   time.Duration
	maxRetries int
	metrics    *telemetry.Metrics
	logger     logger.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewSweeper creates a sweeper over the queue.
func NewSweeper(queue *Queue, requeuer Requeuer, interval time.Duration, maxRetries int, metrics *telemetry.Metrics, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Sweeper{
		queue:      queue,
		requeuer:   requeuer,
		interval:   interval,
		maxRetries: maxRetries,
		metrics:    metrics,
		logger:     log,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sweeper is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("dlq sweeper starting",
		logger.Duration("interval", s.interval),
		logger.Int("max_retries", s.maxRetries))

	go s.run(ctx)
	return nil
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("dlq sweeper stopping")
	close(s.stopChan)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep attempts one recovery from each queue and refreshes depth gauges.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweepHit(ctx)
	s.sweepScreenshot(ctx)

	if _, _, err := s.queue.Depths(ctx); err != nil {
		s.logger.Warn("failed to read dlq depths", logger.Error(err))
	}
}

func (s *Sweeper) sweepHit(ctx context.Context) {
	failed, err := s.queue.PopHit(ctx)
	if err != nil {
		s.logger.Warn("dlq hit pop failed", logger.Error(err))
		return
	}
	if failed == nil {
		return
	}

	if failed.RetryCount >= s.maxRetries {
		s.metrics.DLQDropped.WithLabelValues(domain.FailedKindHit).Inc()
		s.logger.Warn("dropping hit after exhausting retries",
			logger.String("task_id", failed.TaskID),
			logger.String("keyword", failed.MatchedKeyword),
			logger.Int("retry_count", failed.RetryCount),
			logger.String("last_error", failed.Error))
		return
	}

	if s.requeuer.RequeueHit(failed.Hit()) {
		s.logger.Info("recovered hit from dlq",
			logger.String("task_id", failed.TaskID),
			logger.String("keyword", failed.MatchedKeyword))
		return
	}

	failed.RetryCount++
	if err := s.queue.PushHit(ctx, *failed); err != nil {
		s.logger.Error("failed to return hit to dlq", logger.Error(err))
	}
}

func (s *Sweeper) sweepScreenshot(ctx context.Context) {
	failed, err := s.queue.PopScreenshot(ctx)
	if err != nil {
		s.logger.Warn("dlq screenshot pop failed", logger.Error(err))
		return
	}
	if failed == nil {
		return
	}

	if failed.RetryCount >= s.maxRetries {
		s.metrics.DLQDropped.WithLabelValues(domain.FailedKindScreenshot).Inc()
		s.logger.Warn("dropping screenshot job after exhausting retries",
			logger.String("task_id", failed.TaskID),
			logger.String("keyword", failed.Keyword),
			logger.Int("retry_count", failed.RetryCount),
			logger.String("last_error", failed.Error))
		return
	}

	if s.requeuer.RequeueScreenshot(failed.Job()) {
		s.logger.Info("recovered screenshot job from dlq",
			logger.String("task_id", failed.TaskID),
			logger.String("keyword", failed.Keyword))
		return
	}

	failed.RetryCount++
	if err := s.queue.PushScreenshot(ctx, *failed); err != nil {
		s.logger.Error("failed to return screenshot job to dlq", logger.Error(err))
	}
}
