package dlq_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/dlq"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

type stubRequeuer struct {
	acceptHits  bool
	acceptShots bool
	hits        []domain.ValidatedHit
	shots       []domain.ScreenshotJob
}

func (r *stubRequeuer) RequeueHit(hit domain.ValidatedHit) bool {
	if r.acceptHits {
		r.hits = append(r.hits, hit)
	}
	return r.acceptHits
}

func (r *stubRequeuer) RequeueScreenshot(job domain.ScreenshotJob) bool {
	if r.acceptShots {
		r.shots = append(r.shots, job)
	}
	return r.acceptShots
}

func TestSweeperLifecycle(t *testing.T) {
	q, _ := newTestQueue(t)
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	sweeper := dlq.NewSweeper(q, &stubRequeuer{}, time.Hour, 5, metrics, logger.NewNop())

	require.NoError(t, sweeper.Start(context.Background()))
	assert.Error(t, sweeper.Start(context.Background()))

	sweeper.Stop()
	// A second Stop is a no-op rather than a double close.
	sweeper.Stop()
}

func TestSweepRecoversEntries(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	hit := domain.ValidatedHit{TaskID: "task-1", MatchedKeyword: "merchant@upi"}
	job := domain.ScreenshotJob{TaskID: "task-1", Keyword: "merchant@upi"}
	require.NoError(t, q.PushHit(ctx, domain.NewFailedHit(hit, "db_flush_timeout")))
	require.NoError(t, q.PushScreenshot(ctx, domain.NewFailedScreenshot(job, "queue_full")))

	requeuer := &stubRequeuer{acceptHits: true, acceptShots: true}
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	sweeper := dlq.NewSweeper(q, requeuer, time.Minute, 5, metrics, logger.NewNop())

	sweeper.Sweep(ctx)

	require.Len(t, requeuer.hits, 1)
	assert.Equal(t, "merchant@upi", requeuer.hits[0].MatchedKeyword)
	require.Len(t, requeuer.shots, 1)

	hits, screenshots, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Zero(t, hits)
	assert.Zero(t, screenshots)
}

func TestSweepReturnsRejectedEntryWithBumpedRetry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	hit := domain.ValidatedHit{TaskID: "task-1", MatchedKeyword: "merchant@upi"}
	require.NoError(t, q.PushHit(ctx, domain.NewFailedHit(hit, "db_flush_timeout")))

	requeuer := &stubRequeuer{}
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	sweeper := dlq.NewSweeper(q, requeuer, time.Minute, 5, metrics, logger.NewNop())

	sweeper.Sweep(ctx)

	popped, err := q.PopHit(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, 1, popped.RetryCount)
}

func TestSweepDropsExhaustedEntry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	failed := domain.NewFailedHit(domain.ValidatedHit{TaskID: "task-1"}, "db_flush_timeout")
	failed.RetryCount = 5
	require.NoError(t, q.PushHit(ctx, failed))

	requeuer := &stubRequeuer{acceptHits: true}
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	sweeper := dlq.NewSweeper(q, requeuer, time.Minute, 5, metrics, logger.NewNop())

	sweeper.Sweep(ctx)

	assert.Empty(t, requeuer.hits)
	hits, _, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Zero(t, hits)
}

func TestSweepOnePerTick(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.PushHit(ctx, domain.NewFailedHit(domain.ValidatedHit{TaskID: "t"}, "err")))
	}

	requeuer := &stubRequeuer{acceptHits: true}
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	sweeper := dlq.NewSweeper(q, requeuer, time.Minute, 5, metrics, logger.NewNop())

	sweeper.Sweep(ctx)

	require.Len(t, requeuer.hits, 1)
	hits, _, err := q.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits)
}
