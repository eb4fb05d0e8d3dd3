// Package rules implements the rule matcher: compiled corpus regexes,
// alias/brand substring rules, payment-handle patterns, and cryptocurrency
// address patterns, with a context-window heuristic that suppresses weak
// payments-category hits.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

type corpusFile struct {
	Keywords []domain.Rule `yaml:"keywords"`
}

// LoadCorpus reads the keyword corpus YAML at path. Entries without a term
// are skipped with a warning; an unreadable or unparsable file is an error
// because the matcher is useless without its corpus.
func LoadCorpus(path string, log logger.Logger) ([]domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword corpus %s: %w", path, err)
	}

	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keyword corpus %s: %w", path, err)
	}

	rules := make([]domain.Rule, 0, len(file.Keywords))
	for _, r := range file.Keywords {
		if r.Term == "" {
			log.Warn("skipping corpus entry without term", logger.String("category", r.Category))
			continue
		}
		if r.Category == "" {
			r.Category = "uncat"
		}
		rules = append(rules, r)
	}

	log.Info("keyword corpus loaded",
		logger.String("path", path),
		logger.Int("entries", len(rules)))

	return rules, nil
}
