// Package index is the knowledge base index: facet maps and a free-text
// inverted index built once over a record collection.
//
// SYSTEM ARCHITECTURE ROLE:
// The index is the read side of pocket-kb. The service builds one from a
// validated collection and answers every list, search and get from it.
//
// KEY RESPONSIBILITIES:
// - Reject collections with duplicate ids, naming every offender
// - Facet lookup by tag, country pair, resource type and entry type
// - Ranked free-text search over name, summary and tags
//
// An Index is immutable once Build returns. Readers share it without
// locking; a content refresh builds a new Index and swaps the reference.
//
// The full text body is not part of the free-text index. Search covers the
// metadata, which keeps the index proportional to the number of records
// rather than to document length.
package index

import (
	"sort"
	"strings"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

// Facet names a metadata dimension of the index
type Facet string

const (
	FacetTag          Facet = "tag"
	FacetCountryPair  Facet = "country_pair"
	FacetResourceType Facet = "resource_type"
	FacetEntryType    Facet = "entry_type"
)

// posting records how one word occurs in one record
type posting struct {
	inName bool
}

// Index answers queries over one collection snapshot
type Index struct {
	records map[string]models.TemplateRecord
	ids     []string // sorted

	facets map[Facet]map[string][]string // facet -> value -> sorted ids

	postings map[string]map[string]posting // word -> id -> posting
}

// FacetCount is one facet value and the number of records carrying it
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Build indexes records. A collection with duplicate ids fails with a
// *errors.DuplicateIDError listing every duplicated id; nothing is built.
func Build(records []models.TemplateRecord) (*Index, error) {
	if dups := duplicateIDs(records); len(dups) > 0 {
		return nil, errors.NewDuplicateIDError(dups)
	}

	idx := &Index{
		records: make(map[string]models.TemplateRecord, len(records)),
		ids:     make([]string, 0, len(records)),
		facets: map[Facet]map[string][]string{
			FacetTag:          {},
			FacetCountryPair:  {},
			FacetResourceType: {},
			FacetEntryType:    {},
		},
		postings: make(map[string]map[string]posting),
	}

	for _, record := range records {
		record = record.Clone()
		idx.records[record.ID] = record
		idx.ids = append(idx.ids, record.ID)

		for _, tag := range record.TagSet() {
			idx.addFacet(FacetTag, tag, record.ID)
		}
		idx.addFacet(FacetCountryPair, record.CountryPair, record.ID)
		idx.addFacet(FacetResourceType, record.ResourceType, record.ID)
		idx.addFacet(FacetEntryType, string(record.EntryType), record.ID)

		idx.addWords(record.ID, record.Name, true)
		idx.addWords(record.ID, record.Summary, false)
		for _, tag := range record.TagSet() {
			idx.addWords(record.ID, tag, false)
		}
	}

	sort.Strings(idx.ids)
	for _, values := range idx.facets {
		for _, ids := range values {
			sort.Strings(ids)
		}
	}

	return idx, nil
}

func duplicateIDs(records []models.TemplateRecord) []string {
	seen := make(map[string]int, len(records))
	var dups []string
	for _, record := range records {
		seen[record.ID]++
		if seen[record.ID] == 2 {
			dups = append(dups, record.ID)
		}
	}
	return dups
}

func (idx *Index) addFacet(facet Facet, value, id string) {
	if value == "" {
		return
	}
	idx.facets[facet][value] = append(idx.facets[facet][value], id)
}

func (idx *Index) addWords(id, text string, inName bool) {
	for _, word := range Normalize(text) {
		byID, ok := idx.postings[word]
		if !ok {
			byID = make(map[string]posting)
			idx.postings[word] = byID
		}
		p := byID[id]
		p.inName = p.inName || inName
		byID[id] = p
	}
}

// Get returns a copy of the record with the given id
func (idx *Index) Get(id string) (models.TemplateRecord, bool) {
	record, ok := idx.records[id]
	if !ok {
		return models.TemplateRecord{}, false
	}
	return record.Clone(), true
}

// Len returns the number of indexed records
func (idx *Index) Len() int {
	return len(idx.ids)
}

// IDs returns every indexed id in ascending order
func (idx *Index) IDs() []string {
	return append([]string(nil), idx.ids...)
}

// Records returns copies of every record in id order
func (idx *Index) Records() []models.TemplateRecord {
	out := make([]models.TemplateRecord, len(idx.ids))
	for i, id := range idx.ids {
		out[i] = idx.records[id].Clone()
	}
	return out
}

// Values lists the values of a facet with their record counts, sorted by
// value. An unknown facet has no values.
func (idx *Index) Values(facet Facet) []FacetCount {
	values := idx.facets[facet]
	out := make([]FacetCount, 0, len(values))
	for value, ids := range values {
		out = append(out, FacetCount{Value: value, Count: len(ids)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Tags lists every tag in the collection
func (idx *Index) Tags() []FacetCount { return idx.Values(FacetTag) }

// CountryPairs lists every country pair in the collection
func (idx *Index) CountryPairs() []FacetCount { return idx.Values(FacetCountryPair) }

// ResourceTypes lists every resource type in the collection
func (idx *Index) ResourceTypes() []FacetCount { return idx.Values(FacetResourceType) }

// EntryTypes lists every entry type in the collection
func (idx *Index) EntryTypes() []FacetCount { return idx.Values(FacetEntryType) }

// Normalize lowercases text, deletes punctuation and splits on whitespace.
// Punctuation is deleted rather than treated as a separator, so "child's"
// becomes "childs" and "US-Mexico" becomes "usmexico".
func Normalize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case isWordRune(r):
			b.WriteRune(r)
		case isSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}
