// Package validate implements the validation gate that scores match
// candidates before they are persisted as hits. The scorer itself is
// pluggable; the gate owns caching, thresholding, and the fail-open
// contract.
package validate

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

// cacheSnippetLen truncates snippets for cache keying so near-identical
// windows share an entry.
const cacheSnippetLen = 200

// Scorer scores one (keyword, snippet, category) triple to a confidence in
// [0,1]. Implementations may return an error when the backing model is
// unavailable; the gate fails open in that case.
type Scorer interface {
	Score(ctx context.Context, keyword, snippet, category string) (float64, error)
}

// Config controls the gate.
type Config struct {
	// Enabled turns scoring on. Disabled gates pass everything at 1.0.
	Enabled bool
	// Threshold is the minimum confidence for a candidate to become a hit.
	Threshold float64
	// CacheMax bounds the score cache; the cache is cleared wholesale when
	// an insert would exceed it.
	CacheMax int
}

// Gate wraps a Scorer with caching and pass-through semantics.
type Gate struct {
	cfg    Config
	scorer Scorer
	logger logger.Logger

	mu    sync.Mutex
	cache map[string]float64
}

// New creates a gate. scorer may be nil when validation is disabled.
func New(cfg Config, scorer Scorer, log logger.Logger) *Gate {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.55
	}
	if cfg.CacheMax <= 0 {
		cfg.CacheMax = 4096
	}
	if scorer == nil {
		cfg.Enabled = false
	}
	return &Gate{
		cfg:    cfg,
		scorer: scorer,
		logger: log,
		cache:  make(map[string]float64),
	}
}

// Score returns the confidence for one candidate. Disabled or unavailable
// scoring returns 1.0: the gate fails open on confidence, never on input
// validity.
func (g *Gate) Score(ctx context.Context, keyword, snippet, category string) float64 {
	if !g.cfg.Enabled {
		return 1.0
	}

	key := cacheKey(category, keyword, snippet)

	g.mu.Lock()
	if conf, hit := g.cache[key]; hit {
		g.mu.Unlock()
		return conf
	}
	g.mu.Unlock()

	conf, err := g.scorer.Score(ctx, keyword, snippet, category)
	if err != nil {
		g.logger.Warn("scorer unavailable, passing candidate through",
			logger.String("keyword", keyword),
			logger.String("category", category),
			logger.Error(err))
		return 1.0
	}

	g.mu.Lock()
	if len(g.cache) >= g.cfg.CacheMax {
		g.cache = make(map[string]float64)
	}
	g.cache[key] = conf
	g.mu.Unlock()

	return conf
}

// Passes reports whether a confidence clears the configured threshold.
func (g *Gate) Passes(confidence float64) bool {
	return confidence >= g.cfg.Threshold
}

// Threshold returns the configured minimum confidence.
func (g *Gate) Threshold() float64 {
	return g.cfg.Threshold
}

// CacheLen returns the current score cache size.
func (g *Gate) CacheLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

func cacheKey(category, keyword, snippet string) string {
	if len(snippet) > cacheSnippetLen {
		snippet = snippet[:cacheSnippetLen]
	}
	sum := sha1.Sum([]byte(category + "|" + keyword + "|" + snippet))
	return hex.EncodeToString(sum[:])
}
