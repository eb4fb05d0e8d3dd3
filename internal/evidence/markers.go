package evidence

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

const defaultMarkerTTL = 24 * time.Hour

// Markers persists per-task dedup markers so a restart mid-task does not
// re-record hits the previous process already accepted.
type Markers interface {
	// Mark records the key for the task and reports whether it was new.
	Mark(ctx context.Context, mainURL, key string) bool
	// Remove drops specific keys from the task's markers.
	Remove(ctx context.Context, mainURL string, keys []string)
	// Clear drops all markers for the task.
	Clear(ctx context.Context, mainURL string)
}

// RedisMarkers backs dedup markers with one Redis SET per task. Markers
// expire on their own so abandoned tasks do not leak sets.
type RedisMarkers struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewRedisMarkers creates the marker store. ttl <= 0 uses 24h.
func NewRedisMarkers(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisMarkers {
	if ttl <= 0 {
		ttl = defaultMarkerTTL
	}
	return &RedisMarkers{client: client, ttl: ttl, logger: log}
}

// Mark adds the key to the task's marker set. Redis being unreachable fails
// open: the in-memory dedup still guards within this process.
func (m *RedisMarkers) Mark(ctx context.Context, mainURL, key string) bool {
	setKey := markerKey(mainURL)
	added, err := m.client.SAdd(ctx, setKey, key).Result()
	if err != nil {
		m.logger.Debug("dedup marker write failed",
			logger.String("main_url", mainURL),
			logger.Error(err))
		return true
	}
	m.client.Expire(ctx, setKey, m.ttl)
	return added == 1
}

// Remove drops the given keys from the task's marker set.
func (m *RedisMarkers) Remove(ctx context.Context, mainURL string, keys []string) {
	if len(keys) == 0 {
		return
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := m.client.SRem(ctx, markerKey(mainURL), members...).Err(); err != nil {
		m.logger.Debug("dedup marker remove failed",
			logger.String("main_url", mainURL),
			logger.Error(err))
	}
}

// Clear removes the task's marker set.
func (m *RedisMarkers) Clear(ctx context.Context, mainURL string) {
	if err := m.client.Del(ctx, markerKey(mainURL)).Err(); err != nil {
		m.logger.Debug("dedup marker clear failed",
			logger.String("main_url", mainURL),
			logger.Error(err))
	}
}

func markerKey(mainURL string) string {
	sum := sha1.Sum([]byte(mainURL))
	return "dedupe:task:" + hex.EncodeToString(sum[:])
}
