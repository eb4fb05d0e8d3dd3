package processor

import (
	"context"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/content"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/rules"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

const defaultMinTextLength = 200

// Renderer produces fully executed HTML for JS-heavy pages.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// ImageScanner recovers candidates from page images.
type ImageScanner interface {
	Scan(ctx context.Context, imageURLs []string) []domain.MatchCandidate
}

// DomainPolicy is the render-escalation learning store.
type DomainPolicy interface {
	MarkSeen(ctx context.Context, dom string)
	MarkRenderSuccess(ctx context.Context, dom string)
	ShouldForceRender(ctx context.Context, dom string) bool
}

// Pipeline turns one fetched page into match candidates. It owns the
// static-versus-rendered decision; validation and persistence happen in the
// coordinator.
type Pipeline struct {
	extractor     *content.Extractor
	engine        *rules.Engine
	scanner       ImageScanner // nil disables image scanning
	renderer      Renderer     // nil disables render escalation
	policy        DomainPolicy
	cache         *content.HTMLCache // rendered HTML per sub URL, nil disables
	minTextLength int
	metrics       *telemetry.Metrics
	logger        logger.Logger
}

// NewPipeline wires the page matcher.
func NewPipeline(
	extractor *content.Extractor,
	engine *rules.Engine,
	scanner ImageScanner,
	renderer Renderer,
	policy DomainPolicy,
	cache *content.HTMLCache,
	minTextLength int,
	metrics *telemetry.Metrics,
	log logger.Logger,
) *Pipeline {
	if minTextLength <= 0 {
		minTextLength = defaultMinTextLength
	}
	return &Pipeline{
		extractor:     extractor,
		engine:        engine,
		scanner:       scanner,
		renderer:      renderer,
		policy:        policy,
		cache:         cache,
		minTextLength: minTextLength,
		metrics:       metrics,
		logger:        log,
	}
}

// ProcessPage runs extraction, matching, image scanning, and escalation for
// one page. Render failures are soft: the static candidates stand.
func (p *Pipeline) ProcessPage(ctx context.Context, page domain.PageRecord) []domain.MatchCandidate {
	start := time.Now()
	defer func() {
		p.metrics.PageDuration.Observe(time.Since(start).Seconds())
		p.metrics.PagesProcessed.Inc()
	}()

	dom := domain.Domain(page.URL)
	p.policy.MarkSeen(ctx, dom)

	if page.FetchError != "" || page.HTML == "" {
		p.metrics.PageFailures.Inc()
		p.logger.Debug("page skipped",
			logger.String("sub_url", page.URL),
			logger.String("fetch_error", page.FetchError))
		return nil
	}

	forced := p.renderer != nil && p.policy.ShouldForceRender(ctx, dom)

	html := page.HTML
	if forced {
		if rendered, ok := p.renderCached(ctx, page.URL); ok {
			html = rendered
			p.metrics.RenderEscalations.WithLabelValues("true").Inc()
		}
	}

	extracted, err := p.extractor.Extract(page.URL, html)
	if err != nil {
		p.metrics.PageFailures.Inc()
		p.logger.Warn("extraction failed",
			logger.String("sub_url", page.URL),
			logger.Error(err))
		return nil
	}

	candidates := p.engine.Match(extracted.Text)
	candidates = p.scanImages(ctx, candidates, extracted.Images)

	if !forced && p.shouldEscalate(candidates, extracted) {
		candidates = p.escalate(ctx, dom, page.URL, candidates, extracted)
	}

	for _, cand := range candidates {
		p.metrics.Matches.WithLabelValues(cand.Category, string(cand.Source)).Inc()
	}

	return candidates
}

// scanImages runs the QR/OCR pass when the text pass already produced a
// payments candidate.
func (p *Pipeline) scanImages(ctx context.Context, candidates []domain.MatchCandidate, images []string) []domain.MatchCandidate {
	if p.scanner == nil || len(images) == 0 {
		return candidates
	}
	if !hasPaymentsCandidate(candidates) {
		return candidates
	}
	return mergeCandidates(candidates, p.scanner.Scan(ctx, images))
}

// shouldEscalate is the opportunistic trigger: nothing found and the page
// looks JS-heavy (little text or a known framework marker).
func (p *Pipeline) shouldEscalate(candidates []domain.MatchCandidate, extracted *content.PageContent) bool {
	if p.renderer == nil || len(candidates) > 0 {
		return false
	}
	return len(extracted.Text) < p.minTextLength || extracted.FrameworkMarkers
}

// escalate re-runs extraction and matching on rendered HTML. A productive
// render teaches the domain policy to render this domain up front next time.
func (p *Pipeline) escalate(ctx context.Context, dom, pageURL string, candidates []domain.MatchCandidate, static *content.PageContent) []domain.MatchCandidate {
	rendered, ok := p.renderCached(ctx, pageURL)
	if !ok {
		return candidates
	}
	p.metrics.RenderEscalations.WithLabelValues("false").Inc()

	extracted, err := p.extractor.Extract(pageURL, rendered)
	if err != nil {
		p.logger.Warn("rendered extraction failed",
			logger.String("sub_url", pageURL),
			logger.Error(err))
		return candidates
	}

	renderedCands := p.engine.Match(extracted.Text)
	renderedCands = p.scanImages(ctx, renderedCands, extracted.Images)
	merged := mergeCandidates(candidates, renderedCands)

	if len(merged) > len(candidates) || materiallyMoreText(static.Text, extracted.Text) {
		p.policy.MarkRenderSuccess(ctx, dom)
	}

	return merged
}

// renderCached returns rendered HTML for the URL, reusing the cached copy
// when the same page repeats within a task.
func (p *Pipeline) renderCached(ctx context.Context, pageURL string) (string, bool) {
	if p.cache != nil {
		if html, ok := p.cache.Get(pageURL); ok {
			return html, true
		}
	}
	html, ok := p.render(ctx, pageURL)
	if !ok {
		return "", false
	}
	if p.cache != nil {
		p.cache.Put(pageURL, html)
	}
	return html, true
}

func (p *Pipeline) render(ctx context.Context, pageURL string) (string, bool) {
	html, err := p.renderer.Render(ctx, pageURL)
	if err != nil {
		p.metrics.RendererTimeouts.Inc()
		p.logger.Warn("render failed",
			logger.String("sub_url", pageURL),
			logger.Error(err))
		return "", false
	}
	return html, true
}

// materiallyMoreText reports whether the rendered pass doubled the visible
// text, the signal that the static HTML was a JS shell.
func materiallyMoreText(static, rendered string) bool {
	return len(rendered) >= 2*len(static) && len(rendered) > 0
}

func hasPaymentsCandidate(candidates []domain.MatchCandidate) bool {
	for _, cand := range candidates {
		if cand.Category == domain.CategoryPayments {
			return true
		}
	}
	return false
}

// mergeCandidates appends extras, dropping any already present under the
// same (term, category, snippet).
func mergeCandidates(base, extra []domain.MatchCandidate) []domain.MatchCandidate {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base))
	for _, cand := range base {
		seen[cand.Term+"\x00"+cand.Category+"\x00"+cand.Snippet] = struct{}{}
	}
	out := base
	for _, cand := range extra {
		key := cand.Term + "\x00" + cand.Category + "\x00" + cand.Snippet
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cand)
	}
	return out
}
