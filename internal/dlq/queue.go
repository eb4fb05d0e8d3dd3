// Package dlq holds failed hits and screenshot jobs in Redis lists until the
// sweeper re-drives them. Nothing is lost silently: every hot-path drop lands
// here, and exhausted entries leave a warning behind.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

const (
	hitKey        = "dlq:hits"
	screenshotKey = "dlq:screenshots"

	defaultTTL = 30 * 24 * time.Hour
)

// Queue is the Redis-backed dead-letter queue. Entries are pushed at the
// head and popped from the tail, oldest first.
type Queue struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  logger.Logger
}

// NewQueue creates a queue over the shared Redis client.
func NewQueue(client *redis.Client, ttl time.Duration, metrics *telemetry.Metrics, log logger.Logger) *Queue {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Queue{
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		logger:  log,
	}
}

// PushHit enqueues a failed hit. The list TTL is refreshed on every push so
// an active queue never expires under its entries.
func (q *Queue) PushHit(ctx context.Context, failed domain.FailedHit) error {
	if err := q.push(ctx, hitKey, failed); err != nil {
		return err
	}
	q.metrics.DLQEnqueued.WithLabelValues(domain.FailedKindHit).Inc()
	q.logger.Warn("hit routed to dlq",
		logger.String("task_id", failed.TaskID),
		logger.String("keyword", failed.MatchedKeyword),
		logger.String("reason", failed.Error))
	return nil
}

// PushScreenshot enqueues a failed screenshot job.
func (q *Queue) PushScreenshot(ctx context.Context, failed domain.FailedScreenshot) error {
	if err := q.push(ctx, screenshotKey, failed); err != nil {
		return err
	}
	q.metrics.DLQEnqueued.WithLabelValues(domain.FailedKindScreenshot).Inc()
	q.logger.Warn("screenshot job routed to dlq",
		logger.String("task_id", failed.TaskID),
		logger.String("keyword", failed.Keyword),
		logger.String("reason", failed.Error))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, entry any) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push dlq entry: %w", err)
	}
	return nil
}

// PopHit removes and returns the oldest failed hit, or nil when the queue
// is empty.
func (q *Queue) PopHit(ctx context.Context) (*domain.FailedHit, error) {
	payload, err := q.client.RPop(ctx, hitKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop dlq hit: %w", err)
	}

	var failed domain.FailedHit
	if err := json.Unmarshal(payload, &failed); err != nil {
		return nil, fmt.Errorf("unmarshal dlq hit: %w", err)
	}
	return &failed, nil
}

// PopScreenshot removes and returns the oldest failed screenshot job, or
// nil when the queue is empty.
func (q *Queue) PopScreenshot(ctx context.Context) (*domain.FailedScreenshot, error) {
	payload, err := q.client.RPop(ctx, screenshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop dlq screenshot: %w", err)
	}

	var failed domain.FailedScreenshot
	if err := json.Unmarshal(payload, &failed); err != nil {
		return nil, fmt.Errorf("unmarshal dlq screenshot: %w", err)
	}
	return &failed, nil
}

// Depths returns the current queue lengths and refreshes the depth gauges.
func (q *Queue) Depths(ctx context.Context) (hits, screenshots int64, err error) {
	hits, err = q.client.LLen(ctx, hitKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("dlq hit depth: %w", err)
	}
	screenshots, err = q.client.LLen(ctx, screenshotKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("dlq screenshot depth: %w", err)
	}

	q.metrics.DLQDepth.WithLabelValues(domain.FailedKindHit).Set(float64(hits))
	q.metrics.DLQDepth.WithLabelValues(domain.FailedKindScreenshot).Set(float64(screenshots))

	return hits, screenshots, nil
}
