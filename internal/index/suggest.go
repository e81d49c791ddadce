package index

import (
	"github.com/sahilm/fuzzy"
)

// Suggest returns up to limit ids (facet "" or "id") or facet values that
// fuzzily resemble value, best match first. It backs "did you mean" hints
// and is never consulted by Query.
func (idx *Index) Suggest(facet Facet, value string, limit int) []string {
	var candidates []string
	switch facet {
	case "", "id":
		candidates = idx.ids
	default:
		for _, fc := range idx.Values(facet) {
			candidates = append(candidates, fc.Value)
		}
	}

	if value == "" || len(candidates) == 0 {
		return []string{}
	}

	matches := fuzzy.Find(value, candidates)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, match.Str)
	}
	return out
}
