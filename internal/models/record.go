package models

import (
	"sort"
	"strings"
)

// EntryType groups records for presentation. It has no effect on retrieval.
type EntryType string

const (
	EntryResource      EntryType = "resource"
	EntryTemplate      EntryType = "template"
	EntryProcedure     EntryType = "procedure"
	EntryGuidance      EntryType = "guidance"
	EntryCountryMatrix EntryType = "country_matrix"
	EntryPrevention    EntryType = "prevention"
)

// AllEntryTypes returns the closed set of entry types in declaration order
func AllEntryTypes() []EntryType {
	return []EntryType{
		EntryResource,
		EntryTemplate,
		EntryProcedure,
		EntryGuidance,
		EntryCountryMatrix,
		EntryPrevention,
	}
}

// Valid reports whether the entry type belongs to the closed set
func (e EntryType) Valid() bool {
	for _, known := range AllEntryTypes() {
		if e == known {
			return true
		}
	}
	return false
}

// TemplateRecord is one addressable document template.
//
// Records are values: the index keeps its own copies and hands out copies,
// so a record never changes after it has been built into an index. An
// update is a new record with the same ID in a new collection snapshot.
type TemplateRecord struct {
	ID           string    `yaml:"id" json:"id"`
	EntryType    EntryType `yaml:"entry_type" json:"entry_type"`
	Name         string    `yaml:"name" json:"name"`
	CountryPair  string    `yaml:"country_pair,omitempty" json:"country_pair,omitempty"`
	ResourceType string    `yaml:"resource_type,omitempty" json:"resource_type,omitempty"`
	Summary      string    `yaml:"summary,omitempty" json:"summary,omitempty"`
	FullText     string    `yaml:"full_text" json:"full_text"`
	Tags         []string  `yaml:"tags" json:"tags"`

	// Contact metadata, passed through untouched
	Phone string `yaml:"phone,omitempty" json:"phone,omitempty"`
	URL   string `yaml:"url,omitempty" json:"url,omitempty"`
	Email string `yaml:"email,omitempty" json:"email,omitempty"`
}

// Clone returns a copy that shares no mutable state with r
func (r TemplateRecord) Clone() TemplateRecord {
	if r.Tags != nil {
		tags := make([]string, len(r.Tags))
		copy(tags, r.Tags)
		r.Tags = tags
	}
	return r
}

// TagSet returns the record's tags as a set: trimmed, deduplicated, sorted,
// with empty entries dropped
func (r TemplateRecord) TagSet() []string {
	return NormalizeTagSet(r.Tags)
}

// NormalizeTagSet collapses a tag list into its canonical set form
func NormalizeTagSet(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	set := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		set = append(set, tag)
	}
	sort.Strings(set)
	return set
}

// HasTag checks if the record carries the tag (exact match after trimming)
func (r TemplateRecord) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, t := range r.Tags {
		if strings.TrimSpace(t) == tag {
			return true
		}
	}
	return false
}

// Title returns the display title, falling back to the ID
func (r TemplateRecord) Title() string {
	if r.Name != "" {
		return cleanString(r.Name)
	}
	return cleanString(r.ID)
}

// Description returns a one-line summary for list views
func (r TemplateRecord) Description() string {
	var parts []string

	if r.Summary != "" {
		summary := cleanString(r.Summary)
		summary = truncate(summary, 60)
		if summary != "" {
			parts = append(parts, summary)
		}
	}

	if r.CountryPair != "" {
		parts = append(parts, r.CountryPair)
	}

	if tags := r.TagSet(); len(tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(tags, ", "))
	}

	result := strings.Join(parts, " • ")

	// Leave room for the list indicator and margins
	return cleanString(truncate(result, 100))
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// cleanString removes control characters and collapses whitespace so a value
// renders on a single line
func cleanString(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
		} else if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
