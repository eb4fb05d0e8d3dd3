package domain

// CategoryPayments is the category whose matches are gated by the
// payment-context heuristic and trigger image QR/OCR scanning.
const CategoryPayments = "payments"

// Rule is one keyword corpus entry. Patterns are regular expressions
// matched case-insensitively; Aliases and Brands are literal substrings.
type Rule struct {
	Term     string   `yaml:"term"     json:"term"`
	Category string   `yaml:"category" json:"category"`
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Aliases  []string `yaml:"aliases,omitempty"  json:"aliases,omitempty"`
	Brands   []string `yaml:"brands,omitempty"   json:"brands,omitempty"`
}
