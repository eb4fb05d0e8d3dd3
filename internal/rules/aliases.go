package rules

import (
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
)

// minAliasLength filters out aliases too short to be meaningful substrings.
const minAliasLength = 3

type aliasRef struct {
	term     string
	category string
}

type aliasHit struct {
	term     string
	category string
	index    int
}

// aliasMatcher finds corpus aliases and brand names in lowered text with a
// single Aho-Corasick pass, then resolves each matched keyword back to its
// (term, category) mappings and first occurrence position.
type aliasMatcher struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	kwToRefs map[string][]aliasRef
}

func newAliasMatcher(corpus []domain.Rule) *aliasMatcher {
	am := &aliasMatcher{kwToRefs: make(map[string][]aliasRef)}

	type seenKey struct{ term, category, alias string }
	seen := make(map[seenKey]struct{})

	for _, r := range corpus {
		for _, raw := range append(append([]string{}, r.Aliases...), r.Brands...) {
			alias := strings.ToLower(strings.TrimSpace(raw))
			if len(alias) < minAliasLength {
				continue
			}
			k := seenKey{r.Term, r.Category, alias}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}

			if _, known := am.kwToRefs[alias]; !known {
				am.keywords = append(am.keywords, alias)
			}
			am.kwToRefs[alias] = append(am.kwToRefs[alias], aliasRef{term: r.Term, category: r.Category})
		}
	}

	if len(am.keywords) > 0 {
		am.matcher = ahocorasick.NewStringMatcher(am.keywords)
	}

	return am
}

// Len returns the number of distinct alias keywords in the automaton.
func (am *aliasMatcher) Len() int {
	return len(am.keywords)
}

// Find returns one hit per (term, category) mapping of every alias present
// in low, positioned at the alias's first occurrence. low must already be
// lowercased.
func (am *aliasMatcher) Find(low string) []aliasHit {
	if am.matcher == nil {
		return nil
	}

	var hits []aliasHit
	for _, kwIndex := range am.matcher.Match([]byte(low)) {
		if kwIndex >= len(am.keywords) {
			continue
		}
		alias := am.keywords[kwIndex]
		idx := strings.Index(low, alias)
		if idx < 0 {
			continue
		}
		for _, ref := range am.kwToRefs[alias] {
			hits = append(hits, aliasHit{term: ref.term, category: ref.category, index: idx})
		}
	}
	return hits
}
