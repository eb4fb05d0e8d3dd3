// Package evidence moves validated hits from the hot path into Postgres and
// captures screenshot proof for high-confidence matches. Queues between the
// pipeline and the writers are bounded and never block: overflow goes to the
// dead-letter queue instead of stalling ingestion.
package evidence

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

const defaultScreenshotMinConfidence = 0.7

// DeadLetter absorbs entries the hot path cannot hold.
type DeadLetter interface {
	PushHit(ctx context.Context, failed domain.FailedHit) error
	PushScreenshot(ctx context.Context, failed domain.FailedScreenshot) error
}

// Recorder accepts validated hits, deduplicates them per task, and feeds the
// flusher and screenshot queues.
type Recorder struct {
	hits        chan domain.ValidatedHit
	screenshots chan domain.ScreenshotJob

	dlq               DeadLetter
	markers           Markers // nil keeps dedup in-memory only
	minShotConfidence float64
	metrics           *telemetry.Metrics
	logger            logger.Logger

	mu       sync.Mutex
	seen     map[string]map[string]struct{} // main_url -> sub_url|keyword
	shotSeen map[string]map[string]struct{} // main_url -> sub_url
}

// NewRecorder creates a recorder with the given queue capacities.
func NewRecorder(hitQueueCap, screenshotQueueCap int, minShotConfidence float64, dlq DeadLetter, metrics *telemetry.Metrics, log logger.Logger) *Recorder {
	if minShotConfidence <= 0 {
		minShotConfidence = defaultScreenshotMinConfidence
	}
	return &Recorder{
		hits:              make(chan domain.ValidatedHit, hitQueueCap),
		screenshots:       make(chan domain.ScreenshotJob, screenshotQueueCap),
		dlq:               dlq,
		minShotConfidence: minShotConfidence,
		metrics:           metrics,
		logger:            log,
		seen:              make(map[string]map[string]struct{}),
		shotSeen:          make(map[string]map[string]struct{}),
	}
}

// RecordHit enqueues one validated hit. The same (sub_url, keyword) pair is
// recorded once per task; repeats on other pages of the same site are
// dropped silently. The first hit on a sub URL clearing the screenshot
// confidence gate queues a capture job; later keywords on that page do not.
func (r *Recorder) RecordHit(ctx context.Context, hit domain.ValidatedHit) {
	key := hit.SubURL + "|" + hit.MatchedKeyword
	if !r.markSeen(hit.MainURL, key) {
		return
	}
	if r.markers != nil && !r.markers.Mark(ctx, hit.MainURL, key) {
		// A previous process already recorded this hit before restarting.
		return
	}

	if hit.CreatedAt.IsZero() {
		hit.CreatedAt = time.Now().UTC()
	}

	select {
	case r.hits <- hit:
		r.metrics.HitQueueDepth.Set(float64(len(r.hits)))
	default:
		r.metrics.QueueOverflow.WithLabelValues("hits").Inc()
		r.metrics.HitsDropped.Inc()
		if err := r.dlq.PushHit(ctx, domain.NewFailedHit(hit, "hit_queue_full")); err != nil {
			r.logger.Error("hit lost: queue full and dlq unreachable",
				logger.String("task_id", hit.TaskID),
				logger.String("keyword", hit.MatchedKeyword),
				logger.Error(err))
		}
	}

	if hit.Confidence < r.minShotConfidence {
		return
	}
	// One capture per page: a second keyword on the same sub URL would
	// render the identical screenshot.
	if !r.markShot(hit.MainURL, hit.SubURL) {
		return
	}

	job := domain.ScreenshotJob{
		TaskID:  hit.TaskID,
		MainURL: hit.MainURL,
		SubURL:  hit.SubURL,
		Keyword: hit.MatchedKeyword,
	}
	select {
	case r.screenshots <- job:
		r.metrics.ScreenshotQueueDepth.Set(float64(len(r.screenshots)))
	default:
		r.metrics.QueueOverflow.WithLabelValues("screenshots").Inc()
		r.metrics.ScreenshotsDropped.Inc()
		if err := r.dlq.PushScreenshot(ctx, domain.NewFailedScreenshot(job, "screenshot_queue_full")); err != nil {
			r.logger.Error("screenshot job lost: queue full and dlq unreachable",
				logger.String("task_id", job.TaskID),
				logger.String("keyword", job.Keyword),
				logger.Error(err))
		}
	}
}

// RequeueHit re-admits a hit recovered from the DLQ, bypassing task
// deduplication. Non-blocking; false means the queue is still full.
func (r *Recorder) RequeueHit(hit domain.ValidatedHit) bool {
	select {
	case r.hits <- hit:
		r.metrics.HitQueueDepth.Set(float64(len(r.hits)))
		return true
	default:
		return false
	}
}

// RequeueScreenshot re-admits a screenshot job recovered from the DLQ.
func (r *Recorder) RequeueScreenshot(job domain.ScreenshotJob) bool {
	select {
	case r.screenshots <- job:
		r.metrics.ScreenshotQueueDepth.Set(float64(len(r.screenshots)))
		return true
	default:
		return false
	}
}

// SetMarkers enables persistent dedup markers backing the in-memory state
// across restarts mid-task.
func (r *Recorder) SetMarkers(markers Markers) {
	r.markers = markers
}

// ResetTask clears the dedup state for a main URL. Called when a task's
// first batch arrives so a re-run starts clean.
func (r *Recorder) ResetTask(mainURL string) {
	r.mu.Lock()
	delete(r.seen, mainURL)
	delete(r.shotSeen, mainURL)
	r.mu.Unlock()
	if r.markers != nil {
		r.markers.Clear(context.Background(), mainURL)
	}
}

// ForgetURL drops the dedup state for one sub URL across all in-flight
// tasks, including its persisted markers. Called when the page's cached
// HTML is evicted, so a later re-analysis of that page starts clean.
func (r *Recorder) ForgetURL(subURL string) {
	prefix := subURL + "|"

	r.mu.Lock()
	forgotten := make(map[string][]string)
	for mainURL, bucket := range r.seen {
		for key := range bucket {
			if strings.HasPrefix(key, prefix) {
				delete(bucket, key)
				forgotten[mainURL] = append(forgotten[mainURL], key)
			}
		}
	}
	for _, urls := range r.shotSeen {
		delete(urls, subURL)
	}
	r.mu.Unlock()

	if r.markers == nil {
		return
	}
	for mainURL, keys := range forgotten {
		r.markers.Remove(context.Background(), mainURL, keys)
	}
}

// FinishTask drops the dedup state once a task completes.
func (r *Recorder) FinishTask(mainURL string) {
	r.ResetTask(mainURL)
}

// Hits exposes the queue consumed by the flusher.
func (r *Recorder) Hits() <-chan domain.ValidatedHit {
	return r.hits
}

// Screenshots exposes the queue consumed by the screenshot workers.
func (r *Recorder) Screenshots() <-chan domain.ScreenshotJob {
	return r.screenshots
}

// QueueDepths returns current queue lengths.
func (r *Recorder) QueueDepths() (hits, screenshots int) {
	return len(r.hits), len(r.screenshots)
}

func (r *Recorder) markSeen(mainURL, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return markOnce(r.seen, mainURL, key)
}

func (r *Recorder) markShot(mainURL, subURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return markOnce(r.shotSeen, mainURL, subURL)
}

func markOnce(sets map[string]map[string]struct{}, mainURL, key string) bool {
	bucket, ok := sets[mainURL]
	if !ok {
		bucket = make(map[string]struct{})
		sets[mainURL] = bucket
	}
	if _, dup := bucket[key]; dup {
		return false
	}
	bucket[key] = struct{}{}
	return true
}
