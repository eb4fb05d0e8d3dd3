package domainpolicy_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domainpolicy"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

func newTestTracker(t *testing.T, threshold int, cacheTTL time.Duration) *domainpolicy.Tracker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return domainpolicy.NewTracker(client, threshold, cacheTTL, logger.NewNop())
}

func TestEscalationAtThreshold(t *testing.T) {
	tracker := newTestTracker(t, 2, time.Millisecond)
	ctx := context.Background()

	assert.False(t, tracker.ShouldForceRender(ctx, "spa.example"))

	tracker.MarkRenderSuccess(ctx, "spa.example")
	time.Sleep(5 * time.Millisecond)
	assert.False(t, tracker.ShouldForceRender(ctx, "spa.example"))

	tracker.MarkRenderSuccess(ctx, "spa.example")
	assert.True(t, tracker.ShouldForceRender(ctx, "spa.example"))
}

func TestEscalationIsPermanent(t *testing.T) {
	tracker := newTestTracker(t, 1, time.Millisecond)
	ctx := context.Background()

	tracker.MarkRenderSuccess(ctx, "spa.example")
	require.True(t, tracker.ShouldForceRender(ctx, "spa.example"))

	// Further pages, with or without render successes, never de-escalate.
	for i := 0; i < 10; i++ {
		tracker.MarkSeen(ctx, "spa.example")
	}
	time.Sleep(5 * time.Millisecond)
	assert.True(t, tracker.ShouldForceRender(ctx, "spa.example"))
}

func TestStats(t *testing.T) {
	tracker := newTestTracker(t, 2, time.Minute)
	ctx := context.Background()

	tracker.MarkSeen(ctx, "shop.example")
	tracker.MarkSeen(ctx, "shop.example")
	tracker.MarkSeen(ctx, "shop.example")
	tracker.MarkRenderSuccess(ctx, "shop.example")

	stat, err := tracker.Stats(ctx, "shop.example")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stat.Seen)
	assert.Equal(t, int64(1), stat.RenderSuccess)
	assert.False(t, stat.Escalated)
}

func TestEmptyDomainIgnored(t *testing.T) {
	tracker := newTestTracker(t, 2, time.Minute)
	ctx := context.Background()

	tracker.MarkSeen(ctx, "")
	tracker.MarkRenderSuccess(ctx, "")
	assert.False(t, tracker.ShouldForceRender(ctx, ""))
}

func TestCachedViewServesStaleBriefly(t *testing.T) {
	tracker := newTestTracker(t, 1, time.Hour)
	ctx := context.Background()

	// Prime the cache with the non-escalated answer.
	require.False(t, tracker.ShouldForceRender(ctx, "spa.example"))

	tracker.MarkRenderSuccess(ctx, "spa.example")

	// MarkRenderSuccess updates the cache on escalation, so the view is
	// fresh despite the long TTL.
	assert.True(t, tracker.ShouldForceRender(ctx, "spa.example"))
}
