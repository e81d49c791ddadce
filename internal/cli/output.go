package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dpshade/pocket-kb/internal/index"
	"github.com/dpshade/pocket-kb/internal/models"
	"github.com/dpshade/pocket-kb/internal/service"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a bordered table with a styled header row
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorTextMuted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleSubtitle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// clip shortens s to n runes for table cells
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// formatRecords outputs records in the requested format
func (c *CLI) formatRecords(w io.Writer, records []models.TemplateRecord) error {
	switch c.format {
	case formatJSON:
		if records == nil {
			records = []models.TemplateRecord{}
		}
		return writeJSON(w, records)
	case formatIDs:
		for _, r := range records {
			fmt.Fprintln(w, r.ID)
		}
	case formatTable:
		t := newTable("ID", "NAME", "ENTRY", "COUNTRY", "TYPE")
		for _, r := range records {
			t.Row(r.ID, clip(r.Title(), 40), string(r.EntryType), r.CountryPair, r.ResourceType)
		}
		fmt.Fprintln(w, t.String())
	default:
		for _, r := range records {
			fmt.Fprintf(w, "%s - %s\n", title(r.ID), r.Title())
			if desc := r.Description(); desc != "" {
				fmt.Fprintf(w, "  %s\n", metadata(desc))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// hitView is the JSON shape of one search result
type hitView struct {
	index.Hit
	Record models.TemplateRecord `json:"record"`
}

// formatHits outputs ranked results; records are in hit order
func (c *CLI) formatHits(w io.Writer, hits []index.Hit, records []models.TemplateRecord) error {
	switch c.format {
	case formatJSON:
		views := make([]hitView, 0, len(hits))
		for i, hit := range hits {
			views = append(views, hitView{Hit: hit, Record: records[i]})
		}
		return writeJSON(w, views)
	case formatTable:
		t := newTable("#", "ID", "NAME", "SCORE")
		for i, hit := range hits {
			t.Row(strconv.Itoa(i+1), hit.ID, clip(records[i].Title(), 40), strconv.Itoa(hit.Score))
		}
		fmt.Fprintln(w, t.String())
		return nil
	default:
		return c.formatRecords(w, records)
	}
}

// formatRecord outputs a single record
func (c *CLI) formatRecord(w io.Writer, r models.TemplateRecord) error {
	if c.format == formatJSON {
		return writeJSON(w, r)
	}

	fmt.Fprintln(w, title(r.Title()))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s %s\n", metadata(label+":"), value)
		}
	}
	field("ID", r.ID)
	field("Entry", string(r.EntryType))
	field("Country", r.CountryPair)
	field("Type", r.ResourceType)
	field("Summary", r.Summary)
	field("Tags", strings.Join(r.TagSet(), ", "))
	field("Phone", r.Phone)
	field("Email", r.Email)
	field("URL", r.URL)
	fmt.Fprintf(w, "\n%s\n", r.FullText)
	return nil
}

// formatTokens outputs placeholders, with confidence when classify is set
func (c *CLI) formatTokens(w io.Writer, placeholders []models.Placeholder, classify bool) error {
	switch c.format {
	case formatJSON:
		if classify {
			return writeJSON(w, placeholders)
		}
		literals := make([]string, len(placeholders))
		for i, p := range placeholders {
			literals[i] = p.Literal
		}
		return writeJSON(w, literals)
	case formatTable:
		t := newTable("TOKEN", "COUNT", "CONFIDENCE", "REASON")
		for _, p := range placeholders {
			t.Row(p.Literal, strconv.Itoa(p.Occurrences), string(p.Confidence), p.Reason)
		}
		fmt.Fprintln(w, t.String())
	default:
		for _, p := range placeholders {
			if !classify {
				fmt.Fprintln(w, p.Literal)
				continue
			}
			line := fmt.Sprintf("%s  x%d  %s", p.Literal, p.Occurrences, p.Confidence)
			if p.Confidence == models.ConfidenceAmbiguous {
				line = status(line, statusWarning) + "  " + metadata(p.Reason)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

// formatFacets outputs facet listings. only restricts output to one facet.
func (c *CLI) formatFacets(w io.Writer, facets service.Facets, only string) error {
	sections := []struct {
		key    string
		label  string
		values []index.FacetCount
	}{
		{"tag", "Tags", facets.Tags},
		{"country", "Country pairs", facets.CountryPairs},
		{"type", "Resource types", facets.ResourceTypes},
		{"entry", "Entry types", facets.EntryTypes},
	}

	if c.format == formatJSON {
		if only == "" {
			return writeJSON(w, facets)
		}
		for _, s := range sections {
			if s.key == only {
				return writeJSON(w, s.values)
			}
		}
	}

	if c.format == formatTable {
		t := newTable("FACET", "VALUE", "RECORDS")
		for _, s := range sections {
			if only != "" && s.key != only {
				continue
			}
			for _, v := range s.values {
				t.Row(s.key, v.Value, strconv.Itoa(v.Count))
			}
		}
		fmt.Fprintln(w, t.String())
		return nil
	}

	first := true
	for _, s := range sections {
		if only != "" && s.key != only {
			continue
		}
		if c.format == formatIDs {
			for _, v := range s.values {
				fmt.Fprintln(w, v.Value)
			}
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false
		fmt.Fprintln(w, subtitle(s.label))
		for _, v := range s.values {
			fmt.Fprintf(w, "  %s %s\n", v.Value, metadata(fmt.Sprintf("(%d)", v.Count)))
		}
	}
	return nil
}

// formatCheck outputs a validation report
func (c *CLI) formatCheck(w io.Writer, report service.CheckReport) error {
	if c.format == formatJSON {
		return writeJSON(w, report)
	}

	if report.Clean() {
		fmt.Fprintln(w, status(fmt.Sprintf("All %d records valid", report.Validation.Total), statusSuccess))
		return nil
	}

	fmt.Fprintln(w, title(fmt.Sprintf("%d records checked in %s", report.Validation.Total, report.Source)))
	for _, diag := range report.Validation.Invalid {
		id := diag.ID
		if id == "" {
			id = "(no id)"
		}
		fmt.Fprintf(w, "%s %s\n", status("INVALID", statusError), fmt.Sprintf("#%d %s", diag.Index, id))
		for _, e := range diag.Errors {
			fmt.Fprintf(w, "  %s\n", e.String())
		}
	}
	for _, id := range report.DuplicateIDs {
		fmt.Fprintf(w, "%s %s\n", status("DUPLICATE", statusError), id)
	}
	return nil
}
