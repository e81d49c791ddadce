// Package renderer is the placeholder engine: it finds bracket-delimited
// tokens such as [CHILD'S NAME] in a record's full text and substitutes
// user values for them.
//
// A token is the text from an unescaped '[' to the next ']' on the same
// line. Checkbox bullets ("[ ]", "[x]") are not tokens, and an unterminated
// '[' is literal text. Malformed brackets never produce an error.
//
// Known limitation: bracketed citations like "[42] U.S.C. § 11601" are
// tokens by the same rule. The engine cannot tell them apart from real
// fields, so it does not filter them. ClassifyTokens marks such tokens as
// ambiguous and leaves the decision to the caller.
package renderer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dpshade/pocket-kb/internal/models"
)

// Renderer handles rendering of one record's template text
type Renderer struct {
	record models.TemplateRecord
}

// NewRenderer creates a new renderer instance
func NewRenderer(record models.TemplateRecord) *Renderer {
	return &Renderer{record: record.Clone()}
}

// Tokens returns the record's placeholders with confidence marks
func (r *Renderer) Tokens() []models.Placeholder {
	return ClassifyTokens(r.record.FullText)
}

// Fill substitutes values into the record's full text
func (r *Renderer) Fill(values map[string]string) FillResult {
	return Fill(r.record.FullText, values)
}

// RenderText renders the filled full text as plain text
func (r *Renderer) RenderText(values map[string]string) string {
	return r.Fill(values).Text
}

// Document is the JSON envelope produced by RenderJSON
type Document struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Text       string   `json:"text"`
	Unresolved []string `json:"unresolved"`
}

// RenderJSON renders the filled record as a JSON document
func (r *Renderer) RenderJSON(values map[string]string) (string, error) {
	filled := r.Fill(values)
	doc := Document{
		ID:         r.record.ID,
		Name:       r.record.Name,
		Text:       filled.Text,
		Unresolved: filled.Unresolved,
	}

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	return string(jsonBytes), nil
}

// RenderTerminal renders the filled text as styled markdown for a terminal
// of the given width
func (r *Renderer) RenderTerminal(values map[string]string, width int) (string, error) {
	tr, err := newTermRenderer(width)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	markdown := fmt.Sprintf("# %s\n\n%s", r.record.Title(), r.RenderText(values))
	out, err := tr.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

// newTermRenderer picks a glamour style from GLAMOUR_STYLE or the detected
// terminal background
func newTermRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	if wordWrap <= 0 {
		wordWrap = 80
	}

	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		return glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wordWrap),
		)
	}

	profile := termenv.ColorProfile()
	styleOption := glamour.WithAutoStyle()
	if profile == termenv.TrueColor || profile == termenv.ANSI256 {
		if lipgloss.HasDarkBackground() {
			styleOption = glamour.WithStandardStyle("dark")
		} else {
			styleOption = glamour.WithStandardStyle("light")
		}
	}

	return glamour.NewTermRenderer(
		styleOption,
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(wordWrap),
	)
}
