// Package domainpolicy learns which domains need browser rendering. Counters
// live in Redis so the learned policy survives restarts and is shared across
// replicas.
package domainpolicy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

const (
	keyPrefix = "policy:domain:"

	fieldSeen          = "seen"
	fieldRenderSuccess = "render_success"
	fieldEscalated     = "escalated"

	defaultThreshold = 2
	defaultCacheTTL  = 30 * time.Second
)

// Tracker records per-domain render outcomes and answers whether a domain
// should skip static extraction and render immediately.
type Tracker struct {
	client    *redis.Client
	threshold int
	cacheTTL  time.Duration
	logger    logger.Logger

	mu    sync.Mutex
	cache map[string]cachedPolicy
}

type cachedPolicy struct {
	escalated bool
	expires   time.Time
}

// NewTracker creates a tracker over the shared Redis client.
func NewTracker(client *redis.Client, threshold int, cacheTTL time.Duration, log logger.Logger) *Tracker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Tracker{
		client:    client,
		threshold: threshold,
		cacheTTL:  cacheTTL,
		logger:    log,
		cache:     make(map[string]cachedPolicy),
	}
}

// MarkSeen records one processed page for the domain.
func (t *Tracker) MarkSeen(ctx context.Context, dom string) {
	if dom == "" {
		return
	}
	if err := t.client.HIncrBy(ctx, keyPrefix+dom, fieldSeen, 1).Err(); err != nil {
		t.logger.Warn("failed to record domain page",
			logger.String("domain", dom),
			logger.Error(err))
	}
}

// MarkRenderSuccess records a render pass that surfaced content the static
// pass missed. Once successes reach the threshold the domain is escalated
// permanently: future pages render immediately.
func (t *Tracker) MarkRenderSuccess(ctx context.Context, dom string) {
	if dom == "" {
		return
	}
	key := keyPrefix + dom

	successes, err := t.client.HIncrBy(ctx, key, fieldRenderSuccess, 1).Result()
	if err != nil {
		t.logger.Warn("failed to record render success",
			logger.String("domain", dom),
			logger.Error(err))
		return
	}

	if successes < int64(t.threshold) {
		return
	}

	if err := t.client.HSet(ctx, key, fieldEscalated, 1).Err(); err != nil {
		t.logger.Warn("failed to escalate domain",
			logger.String("domain", dom),
			logger.Error(err))
		return
	}

	t.mu.Lock()
	t.cache[dom] = cachedPolicy{escalated: true, expires: time.Now().Add(t.cacheTTL)}
	t.mu.Unlock()

	if successes == int64(t.threshold) {
		t.logger.Info("domain escalated to render-first",
			logger.String("domain", dom),
			logger.Int64("render_successes", successes))
	}
}

// ShouldForceRender reports whether the domain is escalated. The answer is
// cached briefly so the hot path does not hit Redis per page. Redis errors
// fall back to not forcing, never blocking ingestion.
func (t *Tracker) ShouldForceRender(ctx context.Context, dom string) bool {
	if dom == "" {
		return false
	}

	t.mu.Lock()
	if entry, ok := t.cache[dom]; ok && time.Now().Before(entry.expires) {
		t.mu.Unlock()
		return entry.escalated
	}
	t.mu.Unlock()

	escalated := false
	val, err := t.client.HGet(ctx, keyPrefix+dom, fieldEscalated).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		t.logger.Warn("failed to read domain policy",
			logger.String("domain", dom),
			logger.Error(err))
		return false
	}
	if err == nil {
		escalated = val == "1"
	}

	t.mu.Lock()
	t.cache[dom] = cachedPolicy{escalated: escalated, expires: time.Now().Add(t.cacheTTL)}
	t.mu.Unlock()

	return escalated
}

// Stats returns the raw counters for a domain.
func (t *Tracker) Stats(ctx context.Context, dom string) (*domain.DomainStat, error) {
	fields, err := t.client.HGetAll(ctx, keyPrefix+dom).Result()
	if err != nil {
		return nil, fmt.Errorf("read domain policy: %w", err)
	}

	stat := &domain.DomainStat{Domain: dom}
	if v, ok := fields[fieldSeen]; ok {
		stat.Seen, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields[fieldRenderSuccess]; ok {
		stat.RenderSuccess, _ = strconv.ParseInt(v, 10, 64)
	}
	stat.Escalated = fields[fieldEscalated] == "1"

	return stat, nil
}
