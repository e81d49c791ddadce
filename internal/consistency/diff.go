// Package consistency detects drift between two exports of the same
// record collection, for use as a publishing gate.
//
// Diff is pure: it never mutates its inputs and the same two collections
// always produce the same report.
//
// Values are compared as authored. Tags are a set, so order and exact
// duplicates never drift, but tags that differ only in surrounding
// whitespace do.
package consistency

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

// FieldDrift is one field whose value differs between the two sides
type FieldDrift struct {
	Field string `json:"field"`
	A     string `json:"a"`
	B     string `json:"b"`
}

// RecordDrift lists the drifted fields of one id present on both sides
type RecordDrift struct {
	ID     string       `json:"id"`
	Fields []FieldDrift `json:"fields"`
}

// Summary counts records by outcome
type Summary struct {
	Identical int `json:"identical"`
	Drifted   int `json:"drifted"`
	OnlyInA   int `json:"only_in_a"`
	OnlyInB   int `json:"only_in_b"`
}

// DriftReport is the outcome of comparing collection A with collection B
type DriftReport struct {
	OnlyInA    []string      `json:"only_in_a"`
	OnlyInB    []string      `json:"only_in_b"`
	Mismatches []RecordDrift `json:"mismatches"`
	Summary    Summary       `json:"summary"`

	// Ids that occur more than once on one side. The last occurrence is the
	// one compared.
	DuplicatesInA []string `json:"duplicates_in_a,omitempty"`
	DuplicatesInB []string `json:"duplicates_in_b,omitempty"`
}

// Clean reports whether the two sides are equivalent
func (r DriftReport) Clean() bool {
	return len(r.OnlyInA) == 0 && len(r.OnlyInB) == 0 && len(r.Mismatches) == 0 &&
		len(r.DuplicatesInA) == 0 && len(r.DuplicatesInB) == 0
}

// field extracts one comparable field of a record
type field struct {
	name string
	get  func(models.TemplateRecord) string
}

// Scalar fields compare by exact equality. Report order follows the record
// model, with tags between full_text and phone.
var (
	fieldsBeforeTags = []field{
		{"entry_type", func(r models.TemplateRecord) string { return string(r.EntryType) }},
		{"name", func(r models.TemplateRecord) string { return r.Name }},
		{"country_pair", func(r models.TemplateRecord) string { return r.CountryPair }},
		{"resource_type", func(r models.TemplateRecord) string { return r.ResourceType }},
		{"summary", func(r models.TemplateRecord) string { return r.Summary }},
		{"full_text", func(r models.TemplateRecord) string { return r.FullText }},
	}
	fieldsAfterTags = []field{
		{"phone", func(r models.TemplateRecord) string { return r.Phone }},
		{"url", func(r models.TemplateRecord) string { return r.URL }},
		{"email", func(r models.TemplateRecord) string { return r.Email }},
	}
)

// tagSetEqual compares deduplicated tags regardless of order
var tagSetEqual = cmpopts.SortSlices(func(a, b string) bool { return a < b })

// Diff compares every record of a with the record of the same id in b
func Diff(a, b []models.TemplateRecord) DriftReport {
	byIDA, dupsA := byID(a)
	byIDB, dupsB := byID(b)

	report := DriftReport{
		OnlyInA:       []string{},
		OnlyInB:       []string{},
		Mismatches:    []RecordDrift{},
		DuplicatesInA: dupsA,
		DuplicatesInB: dupsB,
	}

	for _, id := range sortedKeys(byIDA) {
		recA := byIDA[id]
		recB, ok := byIDB[id]
		if !ok {
			report.OnlyInA = append(report.OnlyInA, id)
			continue
		}

		if fields := compare(recA, recB); len(fields) > 0 {
			report.Mismatches = append(report.Mismatches, RecordDrift{ID: id, Fields: fields})
		} else {
			report.Summary.Identical++
		}
	}

	for _, id := range sortedKeys(byIDB) {
		if _, ok := byIDA[id]; !ok {
			report.OnlyInB = append(report.OnlyInB, id)
		}
	}

	report.Summary.Drifted = len(report.Mismatches)
	report.Summary.OnlyInA = len(report.OnlyInA)
	report.Summary.OnlyInB = len(report.OnlyInB)
	return report
}

func byID(records []models.TemplateRecord) (map[string]models.TemplateRecord, []string) {
	out := make(map[string]models.TemplateRecord, len(records))
	var dups []string
	for _, r := range records {
		if _, seen := out[r.ID]; seen {
			dups = append(dups, r.ID)
		}
		out[r.ID] = r
	}
	return out, dedupeSorted(dups)
}

func compare(a, b models.TemplateRecord) []FieldDrift {
	var drift []FieldDrift
	for _, f := range fieldsBeforeTags {
		if va, vb := f.get(a), f.get(b); va != vb {
			drift = append(drift, FieldDrift{Field: f.name, A: va, B: vb})
		}
	}

	tagsA, tagsB := uniqueTags(a.Tags), uniqueTags(b.Tags)
	if !cmp.Equal(tagsA, tagsB, tagSetEqual, cmpopts.EquateEmpty()) {
		drift = append(drift, FieldDrift{
			Field: "tags",
			A:     formatTags(tagsA),
			B:     formatTags(tagsB),
		})
	}

	for _, f := range fieldsAfterTags {
		if va, vb := f.get(a), f.get(b); va != vb {
			drift = append(drift, FieldDrift{Field: f.name, A: va, B: vb})
		}
	}
	return drift
}

// uniqueTags drops exact duplicates, keeping first occurrence order
func uniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

// formatTags renders a tag set sorted; tags with surrounding whitespace are
// quoted so the difference is visible
func formatTags(tags []string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	for i, tag := range sorted {
		if tag != strings.TrimSpace(tag) || tag == "" {
			sorted[i] = strconv.Quote(tag)
		}
	}
	return strings.Join(sorted, ", ")
}

func sortedKeys(m map[string]models.TemplateRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupeSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// Format writes a human-readable report
func (r DriftReport) Format(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "identical: %d, drifted: %d, only in A: %d, only in B: %d\n",
		r.Summary.Identical, r.Summary.Drifted, r.Summary.OnlyInA, r.Summary.OnlyInB)

	writeIDs := func(label string, ids []string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", label)
		for _, id := range ids {
			fmt.Fprintf(&b, "  %s\n", id)
		}
	}
	writeIDs("only in A", r.OnlyInA)
	writeIDs("only in B", r.OnlyInB)
	writeIDs("duplicate ids in A", r.DuplicatesInA)
	writeIDs("duplicate ids in B", r.DuplicatesInB)

	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "\n%s:\n", m.ID)
		for _, f := range m.Fields {
			fmt.Fprintf(&b, "  %s\n    A: %s\n    B: %s\n", f.Field, quoteValue(f.A), quoteValue(f.B))
		}
	}

	if r.Clean() {
		b.WriteString("\nno drift\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// quoteValue keeps multi-line bodies on one line
func quoteValue(v string) string {
	const width = 120
	q := []rune(fmt.Sprintf("%q", v))
	if len(q) > width {
		return string(q[:width-3]) + "..."
	}
	return string(q)
}

// ToAppError converts a dirty report to a gate failure, or nil if clean
func (r DriftReport) ToAppError() *errors.AppError {
	if r.Clean() {
		return nil
	}
	appErr := errors.DriftError(fmt.Sprintf("collections differ: %d drifted, %d only in A, %d only in B",
		r.Summary.Drifted, r.Summary.OnlyInA, r.Summary.OnlyInB))
	if len(r.DuplicatesInA)+len(r.DuplicatesInB) > 0 {
		appErr.WithDetails(fmt.Sprintf("duplicate ids: A [%s], B [%s]",
			strings.Join(r.DuplicatesInA, ", "), strings.Join(r.DuplicatesInB, ", ")))
	}
	return appErr.WithContext("summary", r.Summary)
}
