package index

import (
	"sort"
	"unicode"

	"github.com/dpshade/pocket-kb/internal/models"
)

// Hit is one ranked search result
type Hit struct {
	ID string `json:"id"`
	// Score is the number of distinct query terms the record matched
	Score     int  `json:"score"`
	NameMatch bool `json:"name_match"`
}

// Query returns the ids matching q in rank order. Unknown facet values give
// an empty result, never an error.
func (idx *Index) Query(q models.Query) []string {
	hits := idx.Search(q)
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	return ids
}

// Search is Query with ranking details.
//
// Facets are AND'ed; Tags match any requested tag. Free text is normalized
// like the index and every term must occur. Ranking: matched term count
// descending, then records whose name matched, then id ascending. Since
// every hit matches every term, the name match decides in practice. How
// often a term repeats does not count. Without free text results are in
// id order.
func (idx *Index) Search(q models.Query) []Hit {
	candidates := idx.filter(q.Filter)

	terms := uniqueTerms(q.FreeText)
	hits := make([]Hit, 0, len(candidates))
	for _, id := range candidates {
		hit, ok := idx.score(id, terms)
		if ok {
			hits = append(hits, hit)
		}
	}

	if len(terms) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			a, b := hits[i], hits[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if a.NameMatch != b.NameMatch {
				return a.NameMatch
			}
			return a.ID < b.ID
		})
	}

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits
}

// filter returns the sorted ids that satisfy every facet of f
func (idx *Index) filter(f models.Filter) []string {
	ids := idx.ids

	if len(f.Tags) > 0 {
		union := make(map[string]bool)
		for _, tag := range f.Tags {
			for _, id := range idx.facets[FacetTag][trimTag(tag)] {
				union[id] = true
			}
		}
		ids = keep(ids, func(id string) bool { return union[id] })
	}

	for facet, value := range map[Facet]string{
		FacetCountryPair:  f.CountryPair,
		FacetResourceType: f.ResourceType,
		FacetEntryType:    string(f.EntryType),
	} {
		if value == "" {
			continue
		}
		members := make(map[string]bool)
		for _, id := range idx.facets[facet][value] {
			members[id] = true
		}
		ids = keep(ids, func(id string) bool { return members[id] })
	}

	if f.Expression != nil {
		ids = keep(ids, func(id string) bool { return f.Expression.Evaluate(idx.records[id].Tags) })
	}

	return ids
}

// keep returns the ids that pred accepts, preserving order
func keep(ids []string, pred func(string) bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if pred(id) {
			out = append(out, id)
		}
	}
	return out
}

// score reports whether id contains every term, with its rank data
func (idx *Index) score(id string, terms []string) (Hit, bool) {
	hit := Hit{ID: id}
	for _, term := range terms {
		p, ok := idx.postings[term][id]
		if !ok {
			return Hit{}, false
		}
		hit.Score++
		hit.NameMatch = hit.NameMatch || p.inName
	}
	return hit, true
}

func uniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, term := range Normalize(text) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

func trimTag(tag string) string {
	tags := models.NormalizeTagSet([]string{tag})
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}
