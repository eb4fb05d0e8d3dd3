package evidence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/worker"
)

const (
	screenshotAttempts  = 3
	defaultRetryBackoff = time.Second

	stageRender = "render"
	stageUpload = "upload"
	stageAttach = "attach"
)

// Capturer renders a page and returns the screenshot PNG with the snippets
// found around the keyword.
type Capturer interface {
	Screenshot(ctx context.Context, pageURL, keyword string, maxMatches int) ([]byte, []string, error)
}

// Uploader stores the captured PNG and returns its object URL.
type Uploader interface {
	PutScreenshot(ctx context.Context, taskID, pageURL string, png []byte) (string, error)
	Enabled() bool
}

// Attacher links the stored screenshot back to its hit row.
type Attacher interface {
	AttachScreenshot(ctx context.Context, taskID, subURL, keyword, path string) (bool, error)
}

// ScreenshotWorkers consumes the screenshot queue. Each job runs three
// stages; a stage failing all its attempts sends the job to the DLQ tagged
// with the failing stage.
type ScreenshotWorkers struct {
	pool       *worker.Pool
	capturer   Capturer
	store      Uploader
	repo       Attacher
	jobs       <-chan domain.ScreenshotJob
	dlq        DeadLetter
	maxMatches int
	backoff    time.Duration
	metrics    *telemetry.Metrics
	logger     logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewScreenshotWorkers creates the worker set. maxMatches bounds how many
// keyword occurrences the renderer highlights per page.
func NewScreenshotWorkers(
	workers int,
	capturer Capturer,
	store Uploader,
	repo Attacher,
	jobs <-chan domain.ScreenshotJob,
	dlq DeadLetter,
	maxMatches int,
	metrics *telemetry.Metrics,
	log logger.Logger,
) (*ScreenshotWorkers, error) {
	if workers <= 0 {
		workers = 2
	}
	if maxMatches <= 0 {
		maxMatches = 5
	}

	pool, err := worker.NewPool("screenshots", workers, defaultDrainTimeout, log)
	if err != nil {
		return nil, err
	}

	return &ScreenshotWorkers{
		pool:       pool,
		capturer:   capturer,
		store:      store,
		repo:       repo,
		jobs:       jobs,
		dlq:        dlq,
		maxMatches: maxMatches,
		backoff:    defaultRetryBackoff,
		metrics:    metrics,
		logger:     log,
	}, nil
}

// Start launches the dispatch loop feeding the pool.
func (s *ScreenshotWorkers) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	if err := s.pool.Start(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.dispatch(ctx)

	s.logger.Info("screenshot workers started",
		logger.Int("workers", s.pool.Size()))
	return nil
}

// Stop halts dispatch and drains in-flight captures.
func (s *ScreenshotWorkers) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	if err := s.pool.Stop(ctx); err != nil {
		s.logger.Warn("screenshot pool stop", logger.Error(err))
	}
}

func (s *ScreenshotWorkers) dispatch(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobs:
			s.metrics.ScreenshotQueueDepth.Set(float64(len(s.jobs)))
			jobCopy := job
			if err := s.pool.Submit(ctx, func(jobCtx context.Context) {
				s.process(jobCtx, jobCopy)
			}); err != nil {
				s.toDLQ(ctx, jobCopy, "dispatch: "+err.Error())
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// process runs the render, upload, and attach stages with per-stage retries.
func (s *ScreenshotWorkers) process(ctx context.Context, job domain.ScreenshotJob) {
	png, _, err := s.captureWithRetry(ctx, job)
	if err != nil {
		s.failStage(ctx, job, stageRender, err)
		return
	}

	objectURL, err := s.uploadWithRetry(ctx, job, png)
	if err != nil {
		s.failStage(ctx, job, stageUpload, err)
		return
	}

	if err := s.attachWithRetry(ctx, job, objectURL); err != nil {
		s.failStage(ctx, job, stageAttach, err)
		return
	}

	s.metrics.ScreenshotsProcessed.Inc()
	s.logger.Debug("screenshot captured",
		logger.String("task_id", job.TaskID),
		logger.String("sub_url", job.SubURL),
		logger.String("keyword", job.Keyword))
}

func (s *ScreenshotWorkers) captureWithRetry(ctx context.Context, job domain.ScreenshotJob) ([]byte, []string, error) {
	var lastErr error
	for attempt := 1; attempt <= screenshotAttempts; attempt++ {
		png, snippets, err := s.capturer.Screenshot(ctx, job.SubURL, job.Keyword, s.maxMatches)
		if err == nil {
			return png, snippets, nil
		}
		lastErr = err
		s.sleep(ctx, attempt)
	}
	return nil, nil, lastErr
}

func (s *ScreenshotWorkers) uploadWithRetry(ctx context.Context, job domain.ScreenshotJob, png []byte) (string, error) {
	if !s.store.Enabled() {
		return "", nil
	}

	var lastErr error
	for attempt := 1; attempt <= screenshotAttempts; attempt++ {
		objectURL, err := s.store.PutScreenshot(ctx, job.TaskID, job.SubURL, png)
		if err == nil {
			return objectURL, nil
		}
		s.metrics.ObjstoreErrors.Inc()
		lastErr = err
		s.sleep(ctx, attempt)
	}
	return "", lastErr
}

func (s *ScreenshotWorkers) attachWithRetry(ctx context.Context, job domain.ScreenshotJob, objectURL string) error {
	if objectURL == "" {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= screenshotAttempts; attempt++ {
		attached, err := s.repo.AttachScreenshot(ctx, job.TaskID, job.SubURL, job.Keyword, objectURL)
		if err == nil {
			if !attached {
				// The hit may still be waiting in the flush queue. The
				// retry delay gives the flusher time to land it.
				lastErr = fmt.Errorf("no hit row for %s/%s yet", job.SubURL, job.Keyword)
				s.sleep(ctx, attempt)
				continue
			}
			return nil
		}
		lastErr = err
		s.sleep(ctx, attempt)
	}
	return lastErr
}

// sleep waits attempt*backoff, so retries back off linearly.
func (s *ScreenshotWorkers) sleep(ctx context.Context, attempt int) {
	if attempt >= screenshotAttempts {
		return
	}
	select {
	case <-time.After(time.Duration(attempt) * s.backoff):
	case <-ctx.Done():
	}
}

func (s *ScreenshotWorkers) failStage(ctx context.Context, job domain.ScreenshotJob, stage string, err error) {
	s.metrics.ScreenshotFailures.WithLabelValues(stage).Inc()
	s.toDLQ(ctx, job, stage+": "+err.Error())
}

func (s *ScreenshotWorkers) toDLQ(ctx context.Context, job domain.ScreenshotJob, reason string) {
	s.logger.Warn("screenshot job failed",
		logger.String("task_id", job.TaskID),
		logger.String("sub_url", job.SubURL),
		logger.String("keyword", job.Keyword),
		logger.String("reason", reason))

	if err := s.dlq.PushScreenshot(ctx, domain.NewFailedScreenshot(job, reason)); err != nil {
		s.logger.Error("screenshot job lost: dlq unreachable",
			logger.String("task_id", job.TaskID),
			logger.Error(err))
	}
}
