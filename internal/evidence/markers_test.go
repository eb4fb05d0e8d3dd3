package evidence_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/evidence"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

func newMarkers(t *testing.T) *evidence.RedisMarkers {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return evidence.NewRedisMarkers(client, 0, logger.NewNop())
}

func TestMarkersMarkOncePerKey(t *testing.T) {
	markers := newMarkers(t)
	ctx := context.Background()

	assert.True(t, markers.Mark(ctx, "https://shop.example", "page|keyword"))
	assert.False(t, markers.Mark(ctx, "https://shop.example", "page|keyword"))
	assert.True(t, markers.Mark(ctx, "https://shop.example", "page|other"))
	// Another task keeps its own marker set.
	assert.True(t, markers.Mark(ctx, "https://other.example", "page|keyword"))
}

func TestMarkersRemove(t *testing.T) {
	markers := newMarkers(t)
	ctx := context.Background()

	markers.Mark(ctx, "https://shop.example", "page|keyword")
	markers.Mark(ctx, "https://shop.example", "page|other")
	markers.Remove(ctx, "https://shop.example", []string{"page|keyword"})

	assert.True(t, markers.Mark(ctx, "https://shop.example", "page|keyword"))
	assert.False(t, markers.Mark(ctx, "https://shop.example", "page|other"))
}

func TestMarkersClear(t *testing.T) {
	markers := newMarkers(t)
	ctx := context.Background()

	markers.Mark(ctx, "https://shop.example", "page|keyword")
	markers.Clear(ctx, "https://shop.example")
	assert.True(t, markers.Mark(ctx, "https://shop.example", "page|keyword"))
}

func TestRecorderSurvivesRestartDedup(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	rec, _ := newRecorder(t, 10, 10)
	rec.SetMarkers(evidence.NewRedisMarkers(client, 0, logger.NewNop()))
	rec.RecordHit(ctx, testHit("t1", "https://shop.example/pay", "merchant@upi", 0.5))

	// A fresh process with empty in-memory state but the same Redis sees
	// the marker and drops the repeat.
	restarted, _ := newRecorder(t, 10, 10)
	restarted.SetMarkers(evidence.NewRedisMarkers(client, 0, logger.NewNop()))
	restarted.RecordHit(ctx, testHit("t1", "https://shop.example/pay", "merchant@upi", 0.5))

	hits, _ := restarted.QueueDepths()
	assert.Zero(t, hits)

	// A reset clears the persisted markers too.
	restarted.ResetTask("https://shop.example")
	restarted.RecordHit(ctx, testHit("t1", "https://shop.example/pay", "merchant@upi", 0.5))
	hits, _ = restarted.QueueDepths()
	assert.Equal(t, 1, hits)
}

func TestForgetURLClearsPersistedMarkers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	rec, _ := newRecorder(t, 10, 10)
	rec.SetMarkers(evidence.NewRedisMarkers(client, 0, logger.NewNop()))
	rec.RecordHit(ctx, testHit("t1", "https://shop.example/pay", "merchant@upi", 0.5))
	rec.ForgetURL("https://shop.example/pay")

	// Even a fresh process no longer sees the forgotten marker.
	restarted, _ := newRecorder(t, 10, 10)
	restarted.SetMarkers(evidence.NewRedisMarkers(client, 0, logger.NewNop()))
	restarted.RecordHit(ctx, testHit("t1", "https://shop.example/pay", "merchant@upi", 0.5))

	hits, _ := restarted.QueueDepths()
	assert.Equal(t, 1, hits)
}
