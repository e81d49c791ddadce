package renderer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dpshade/pocket-kb/internal/models"
)

// span is one recognised token occurrence: text[start:end] is the literal
type span struct {
	start, end int
}

// scanTokens returns every placeholder occurrence in text, left to right.
// A candidate opens at an unescaped '[' and closes at the next ']' on the
// same line. A '[' that reaches a newline or the end of the text first is
// literal and scanning resumes right after it.
func scanTokens(text string) []span {
	var spans []span
	for i := 0; i < len(text); i++ {
		if text[i] != '[' || escaped(text, i) {
			continue
		}

		end := -1
		for j := i + 1; j < len(text); j++ {
			if text[j] == ']' {
				end = j
				break
			}
			if text[j] == '\n' {
				break
			}
		}
		if end < 0 {
			continue
		}

		if !isCheckbox(text[i+1 : end]) {
			spans = append(spans, span{start: i, end: end + 1})
		}
		i = end
	}
	return spans
}

// escaped reports whether the byte at i is preceded by an odd run of backslashes
func escaped(text string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && text[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// isCheckbox matches list bullets like "[ ]", "[x]", "[-]" and "[]"
func isCheckbox(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return true
	}
	r, size := utf8.DecodeRuneInString(content)
	if size != len(content) {
		return false
	}
	return r == 'x' || r == 'X' || !(unicode.IsLetter(r) || unicode.IsDigit(r))
}

// ExtractTokens returns the distinct placeholder literals of fullText,
// brackets included, in first-occurrence order
func ExtractTokens(fullText string) []string {
	tokens := []string{}
	seen := make(map[string]bool)
	for _, s := range scanTokens(fullText) {
		literal := fullText[s.start:s.end]
		if !seen[literal] {
			seen[literal] = true
			tokens = append(tokens, literal)
		}
	}
	return tokens
}

// FillResult is the outcome of substituting values into a text
type FillResult struct {
	Text string `json:"text"`
	// Unresolved lists tokens left in Text, in first-occurrence order
	Unresolved []string `json:"unresolved"`
	// Unused lists value keys that are not tokens of the text, sorted
	Unused []string `json:"unused,omitempty"`
}

// Complete reports whether every token received a value
func (f FillResult) Complete() bool {
	return len(f.Unresolved) == 0
}

// Fill replaces every token occurrence that has an entry in values. The
// text is walked once; replacement values are written through verbatim and
// never scanned for tokens themselves.
func Fill(fullText string, values map[string]string) FillResult {
	result := FillResult{Unresolved: []string{}}
	used := make(map[string]bool, len(values))
	unresolved := make(map[string]bool)

	var b strings.Builder
	b.Grow(len(fullText))
	last := 0
	for _, s := range scanTokens(fullText) {
		literal := fullText[s.start:s.end]
		b.WriteString(fullText[last:s.start])
		if value, ok := values[literal]; ok {
			b.WriteString(value)
			used[literal] = true
		} else {
			b.WriteString(literal)
			if !unresolved[literal] {
				unresolved[literal] = true
				result.Unresolved = append(result.Unresolved, literal)
			}
		}
		last = s.end
	}
	b.WriteString(fullText[last:])
	result.Text = b.String()

	for key := range values {
		if !used[key] {
			result.Unused = append(result.Unused, key)
		}
	}
	sort.Strings(result.Unused)

	return result
}

// citationMarkers follow a bracketed number in statute citations such as
// "[42] U.S.C. § 11601"
var citationMarkers = []string{"U.S.C.", "USC", "C.F.R.", "CFR", "§", "Stat."}

// ClassifyTokens is ExtractTokens with a confidence judgement per token.
// Nothing is dropped: a token that reads like a citation or a footnote
// marker is returned as ConfidenceAmbiguous with the reason.
func ClassifyTokens(fullText string) []models.Placeholder {
	placeholders := []models.Placeholder{}
	position := make(map[string]int)

	for _, s := range scanTokens(fullText) {
		literal := fullText[s.start:s.end]
		i, ok := position[literal]
		if !ok {
			i = len(placeholders)
			position[literal] = i
			placeholders = append(placeholders, models.Placeholder{
				Literal:    literal,
				Confidence: models.ConfidenceField,
			})
		}

		p := &placeholders[i]
		p.Occurrences++
		if p.Confidence == models.ConfidenceAmbiguous {
			continue
		}
		if reason := ambiguity(fullText, s); reason != "" {
			p.Confidence = models.ConfidenceAmbiguous
			p.Reason = reason
		}
	}

	return placeholders
}

// ambiguity explains why an occurrence may not be a fill-in field, or
// returns "" if nothing suggests that
func ambiguity(text string, s span) string {
	rest := strings.TrimLeft(text[s.end:], " \t")
	for _, marker := range citationMarkers {
		if strings.HasPrefix(rest, marker) {
			return fmt.Sprintf("followed by citation marker %q", marker)
		}
	}

	if isFootnote(text[s.start+1 : s.end-1]) {
		return "numeric footnote marker"
	}
	return ""
}

// isFootnote matches contents made only of digits and separators, e.g. "1" or "2.3"
func isFootnote(content string) bool {
	digits := 0
	for _, r := range content {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',' || r == '-' || r == ' ':
		default:
			return false
		}
	}
	return digits > 0
}
