// Package querybuilder rewrites a raw query into a boolean query string
// enriched with expansion terms, ready to hand to a search backend.
package querybuilder

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/expansion"
)

// Builder controls how expansion terms are folded into the rewritten query.
type Builder struct {
	// MaxTerms caps how many expansion terms are appended. Non-positive
	// means no cap.
	MaxTerms int
	// MinWeight drops expansion terms below this weight.
	MinWeight float64
	// Operator joins the original query with each term. Defaults to OR.
	Operator string
}

// Build returns the original query joined with the selected expansion
// terms. With no usable terms the original query is returned unchanged.
func (b Builder) Build(original string, set expansion.ResultSet) string {
	terms := b.selectTerms(set)
	original = strings.TrimSpace(original)
	if len(terms) == 0 {
		return original
	}

	parts := make([]string, 0, len(terms)+1)
	if original != "" {
		parts = append(parts, original)
	}
	parts = append(parts, terms...)
	return strings.Join(parts, " "+b.operator()+" ")
}

// Terms returns up to n selected expansion terms in rank order, honoring
// MinWeight. Non-positive n falls back to MaxTerms.
func (b Builder) Terms(set expansion.ResultSet, n int) []string {
	if n > 0 {
		b.MaxTerms = n
	}
	return b.selectTerms(set)
}

func (b Builder) selectTerms(set expansion.ResultSet) []string {
	terms := make([]string, 0, set.Size())
	for c := set.Begin(); !c.Equal(set.End()); c.Next() {
		if b.MaxTerms > 0 && len(terms) >= b.MaxTerms {
			break
		}
		if c.Weight() < b.MinWeight {
			// Entries are ranked by descending weight, nothing below
			// the cutoff follows.
			break
		}
		terms = append(terms, c.Term())
	}
	return terms
}

func (b Builder) operator() string {
	op := strings.ToUpper(strings.TrimSpace(b.Operator))
	switch op {
	case "AND", "OR":
		return op
	default:
		return "OR"
	}
}
