package model

import "strings"

// PairPolicy decides which categories are booked by two people.  Names
// are compared after trimming and lower-casing.
type PairPolicy struct {
	categories map[string]struct{}
}

// NewPairPolicy builds a policy from the configured category names.
func NewPairPolicy(categories []string) PairPolicy {
	p := PairPolicy{categories: make(map[string]struct{}, len(categories))}
	for _, c := range categories {
		if k := normalizeCategory(c); k != "" {
			p.categories[k] = struct{}{}
		}
	}
	return p
}

// IsPair reports whether category requires a partner.
func (p PairPolicy) IsPair(category string) bool {
	_, ok := p.categories[normalizeCategory(category)]
	return ok
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
