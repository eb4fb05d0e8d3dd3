package rules

import (
	"regexp"
	"strings"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

// Snippet and context windows, in bytes of cleaned text.
const (
	snippetWindow = 100
	contextWindow = 80
)

// Per-source context-score gates for the payments category.
const (
	regexContextGate = 0.30
	aliasContextGate = 0.25
)

// Base confidences carried on candidates before the validation gate runs.
const (
	upiHandleConfidence = 0.85
	cryptoConfidence    = 0.95
)

var (
	upiContextRe = regexp.MustCompile(
		`(?i)\b[a-zA-Z0-9._-]{2,}@(upi|paytm|ybl|okicici|oksbi|okaxis|okhdfcbank|ibl|axl|idfcbank|apl|payu|pingpay|barodampay|boi|zomato)\b`)
	upiGenericRe = regexp.MustCompile(`\b[a-zA-Z0-9._-]{3,}@[a-zA-Z]{2,}\b`)
	btcRe        = regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)
	ethRe        = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)

	cleanNewlines = regexp.MustCompile(`[\t\r\n]+`)
	cleanSpaces   = regexp.MustCompile(`\s{2,}`)
	cleanNonASCII = regexp.MustCompile(`[^\x20-\x7E]+`)
)

// paymentTokens is the vocabulary counted by the context-score heuristic.
var paymentTokens = []string{
	"buy", "order", "pay", "scan", "checkout", "upi", "gpay",
	"phonepe", "paytm", "payment", "merchant", "qr", "amount", "send", "transfer",
}

type compiledRule struct {
	term     string
	category string
	pattern  *regexp.Regexp
}

// Engine applies the full rule set to cleaned page text in one call. Built
// once at startup; Match is safe for concurrent use.
type Engine struct {
	rules   []compiledRule
	aliases *aliasMatcher
	logger  logger.Logger
}

// NewEngine compiles the corpus. Invalid regex patterns are logged and
// skipped, never fatal.
func NewEngine(corpus []domain.Rule, log logger.Logger) *Engine {
	e := &Engine{logger: log}

	for _, r := range corpus {
		for _, pat := range r.Patterns {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				log.Warn("skipping invalid corpus pattern",
					logger.String("term", r.Term),
					logger.String("pattern", pat),
					logger.Error(err))
				continue
			}
			e.rules = append(e.rules, compiledRule{term: r.Term, category: r.Category, pattern: re})
		}
	}

	e.aliases = newAliasMatcher(corpus)

	log.Info("rule engine initialized",
		logger.Int("regex_rules", len(e.rules)),
		logger.Int("aliases", e.aliases.Len()))

	return e
}

// CleanText collapses whitespace runs and strips non-printable bytes so
// snippet windows are stable byte offsets.
func CleanText(s string) string {
	s = cleanNewlines.ReplaceAllString(s, " ")
	s = cleanSpaces.ReplaceAllString(s, " ")
	s = cleanNonASCII.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Match runs every rule source over the text and returns candidates deduped
// by (term, category, snippet) in discovery order. The input need not be
// pre-cleaned.
func (e *Engine) Match(text string) []domain.MatchCandidate {
	text = CleanText(text)
	if text == "" {
		return nil
	}
	low := strings.ToLower(text)

	var out []domain.MatchCandidate
	out = e.matchRegexRules(text, out)
	out = e.matchAliases(text, low, out)
	out = matchUPIHandles(text, out)
	out = matchCryptoAddresses(text, out)

	return dedupeCandidates(out)
}

func (e *Engine) matchRegexRules(text string, out []domain.MatchCandidate) []domain.MatchCandidate {
	for _, r := range e.rules {
		for _, loc := range r.pattern.FindAllStringIndex(text, -1) {
			score := 1.0
			if r.category == domain.CategoryPayments {
				score = ContextScore(text, loc[0])
				if score < regexContextGate {
					continue
				}
			}
			out = append(out, domain.MatchCandidate{
				Term:     r.term,
				Category: r.category,
				Snippet:  window(text, loc[0], snippetWindow),
				Source:   domain.SourceRegex,
				Score:    score,
			})
		}
	}
	return out
}

func (e *Engine) matchAliases(text, low string, out []domain.MatchCandidate) []domain.MatchCandidate {
	for _, hit := range e.aliases.Find(low) {
		score := 1.0
		if hit.category == domain.CategoryPayments {
			score = ContextScore(text, hit.index)
			if score < aliasContextGate {
				continue
			}
		}
		out = append(out, domain.MatchCandidate{
			Term:     hit.term,
			Category: hit.category,
			Snippet:  window(text, hit.index, snippetWindow),
			Source:   domain.SourceAlias,
			Score:    score,
		})
	}
	return out
}

func matchUPIHandles(text string, out []domain.MatchCandidate) []domain.MatchCandidate {
	for _, loc := range upiContextRe.FindAllStringIndex(text, -1) {
		ctx := ContextScore(text, loc[0])
		if ctx < regexContextGate {
			continue
		}
		out = append(out, domain.MatchCandidate{
			Term:     "upi-handle",
			Category: domain.CategoryPayments,
			Snippet:  window(text, loc[0], contextWindow),
			Source:   domain.SourceContext,
			Score:    upiHandleConfidence * ctx,
		})
	}
	return out
}

func matchCryptoAddresses(text string, out []domain.MatchCandidate) []domain.MatchCandidate {
	for _, loc := range btcRe.FindAllStringIndex(text, -1) {
		out = append(out, domain.MatchCandidate{
			Term:     "bitcoin",
			Category: "crypto",
			Snippet:  window(text, loc[0], contextWindow),
			Source:   domain.SourceRegex,
			Score:    cryptoConfidence,
		})
	}
	for _, loc := range ethRe.FindAllStringIndex(text, -1) {
		out = append(out, domain.MatchCandidate{
			Term:     "ethereum",
			Category: "crypto",
			Snippet:  window(text, loc[0], contextWindow),
			Source:   domain.SourceRegex,
			Score:    cryptoConfidence,
		})
	}
	return out
}

// ContextScore measures the density of payment vocabulary within the
// context window around idx, normalized to [0,1]: min(tokens/4, 1.0).
func ContextScore(text string, idx int) float64 {
	w := strings.ToLower(window(text, idx, contextWindow))
	count := 0
	for _, tok := range paymentTokens {
		if strings.Contains(w, tok) {
			count++
		}
	}
	score := float64(count) / 4
	if score > 1.0 {
		return 1.0
	}
	return score
}

// window returns text[idx-n : idx+n] clamped to the string bounds.
func window(text string, idx, n int) string {
	start := idx - n
	if start < 0 {
		start = 0
	}
	end := idx + n
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

func dedupeCandidates(in []domain.MatchCandidate) []domain.MatchCandidate {
	type key struct{ term, category, snippet string }
	seen := make(map[key]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		k := key{c.Term, c.Category, c.Snippet}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
