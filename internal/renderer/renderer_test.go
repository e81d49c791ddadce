package renderer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-kb/internal/models"
)

const hearingText = "Dear [NAME], your hearing is on [DATE]."

func TestExtractTokensFirstOccurrenceOrder(t *testing.T) {
	assert.Equal(t, []string{"[NAME]", "[DATE]"}, ExtractTokens(hearingText))
}

func TestFillPartialValues(t *testing.T) {
	result := Fill(hearingText, map[string]string{"[NAME]": "Jane"})

	assert.Equal(t, "Dear Jane, your hearing is on [DATE].", result.Text)
	assert.Equal(t, []string{"[DATE]"}, result.Unresolved)
	assert.Empty(t, result.Unused)
	assert.False(t, result.Complete())
}

func TestExtractTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"no brackets", "plain text", []string{}},
		{"duplicates collapse", "[A B] and [A B] then [C]", []string{"[A B]", "[C]"}},
		{"distinct literals stay distinct", "[DATE] [DATE OF BIRTH]", []string{"[DATE]", "[DATE OF BIRTH]"}},
		{"checkboxes skipped", "- [ ] call\n- [x] write\n- [X] file\n- [-] n/a\n- [] none\n[CHILD'S NAME]", []string{"[CHILD'S NAME]"}},
		{"single letter is a token", "option [A]", []string{"[A]"}},
		{"unterminated at end", "see [NAME and more", []string{}},
		{"unterminated before newline", "see [NAME\nthen [DATE]", []string{"[DATE]"}},
		{"escaped bracket", `literal \[NOT] but [YES]`, []string{"[YES]"}},
		{"escaped backslash", `path \\[YES]`, []string{"[YES]"}},
		{"citation is a token", "under [42] U.S.C. § 11601", []string{"[42]"}},
		{"nested looking", "[a [B]", []string{"[a [B]"}},
		{"unicode content", "[NOMBRE DEL NIÑO]", []string{"[NOMBRE DEL NIÑO]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ExtractTokens(tt.text)); diff != "" {
				t.Errorf("ExtractTokens(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestFillRoundTrip(t *testing.T) {
	texts := []string{
		hearingText,
		"To [AUTHORITY],\n\nRe: [CHILD'S NAME] born [DATE OF BIRTH].\n- [ ] attach [DOCUMENT]\n[CHILD'S NAME] was taken on [DATE].",
		"no tokens at all",
		"broken [bracket\n[OK]",
	}

	for _, text := range texts {
		tokens := ExtractTokens(text)

		empty := Fill(text, nil)
		assert.Equal(t, text, empty.Text)
		assert.Equal(t, tokens, empty.Unresolved)

		values := make(map[string]string, len(tokens))
		for i, token := range tokens {
			values[token] = strings.Repeat("v", i+1)
		}
		full := Fill(text, values)
		assert.Empty(t, full.Unresolved)
		assert.True(t, full.Complete())
		for _, token := range tokens {
			assert.NotContains(t, full.Text, token)
		}
	}
}

func TestFillIsNotRecursive(t *testing.T) {
	result := Fill("[A] and [B]", map[string]string{
		"[A]": "[B]",
		"[B]": "[A]",
	})
	assert.Equal(t, "[B] and [A]", result.Text)
	assert.Empty(t, result.Unresolved)
}

func TestFillReplacesEveryOccurrence(t *testing.T) {
	result := Fill("[N] met [N] at [PLACE]", map[string]string{"[N]": "Ana", "[UNUSED]": "x", "[ ]": "y"})
	assert.Equal(t, "Ana met Ana at [PLACE]", result.Text)
	assert.Equal(t, []string{"[PLACE]"}, result.Unresolved)
	assert.Equal(t, []string{"[ ]", "[UNUSED]"}, result.Unused)
}

func TestFillLeavesCheckboxesAndUnterminated(t *testing.T) {
	text := "- [ ] send [FORM]\nopen [bracket"
	result := Fill(text, map[string]string{"[FORM]": "DS-3013"})
	assert.Equal(t, "- [ ] send DS-3013\nopen [bracket", result.Text)
}

func TestClassifyTokens(t *testing.T) {
	text := "Under [NUMBER] U.S.C. § 1204 and [22] CFR 94, see note [1] and [2.3].\n" +
		"Dear [NAME], see [NUMBER]. Also [SECTION] §5 and [TITLE]  Stat. 1."

	got := ClassifyTokens(text)
	want := []models.Placeholder{
		{Literal: "[NUMBER]", Occurrences: 2, Confidence: models.ConfidenceAmbiguous, Reason: `followed by citation marker "U.S.C."`},
		{Literal: "[22]", Occurrences: 1, Confidence: models.ConfidenceAmbiguous, Reason: `followed by citation marker "CFR"`},
		{Literal: "[1]", Occurrences: 1, Confidence: models.ConfidenceAmbiguous, Reason: "numeric footnote marker"},
		{Literal: "[2.3]", Occurrences: 1, Confidence: models.ConfidenceAmbiguous, Reason: "numeric footnote marker"},
		{Literal: "[NAME]", Occurrences: 1, Confidence: models.ConfidenceField},
		{Literal: "[SECTION]", Occurrences: 1, Confidence: models.ConfidenceAmbiguous, Reason: `followed by citation marker "§"`},
		{Literal: "[TITLE]", Occurrences: 1, Confidence: models.ConfidenceAmbiguous, Reason: `followed by citation marker "Stat."`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ClassifyTokens mismatch (-want +got):\n%s", diff)
	}

	literals := make([]string, len(got))
	for i, p := range got {
		literals[i] = p.Literal
	}
	assert.Equal(t, ExtractTokens(text), literals)
}

func TestClassifyAmbiguousOnLaterOccurrence(t *testing.T) {
	got := ClassifyTokens("[N] items; see [N] USC 1")
	require.Len(t, got, 1)
	assert.Equal(t, models.ConfidenceAmbiguous, got[0].Confidence)
	assert.Equal(t, 2, got[0].Occurrences)
	assert.Equal(t, "N", got[0].Label())
}

func testRecord() models.TemplateRecord {
	return models.TemplateRecord{
		ID:        "letter-1",
		EntryType: models.EntryTemplate,
		Name:      "Hearing letter",
		FullText:  hearingText,
		Tags:      []string{"Legal"},
	}
}

func TestRendererJSON(t *testing.T) {
	out, err := NewRenderer(testRecord()).RenderJSON(map[string]string{"[DATE]": "May 1"})
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, Document{
		ID:         "letter-1",
		Name:       "Hearing letter",
		Text:       "Dear [NAME], your hearing is on May 1.",
		Unresolved: []string{"[NAME]"},
	}, doc)
}

func TestRendererDoesNotAliasRecord(t *testing.T) {
	record := testRecord()
	r := NewRenderer(record)
	record.FullText = "changed"
	record.Tags[0] = "changed"

	assert.Equal(t, hearingText, r.RenderText(nil))
	assert.Len(t, r.Tokens(), 2)
}

func TestRendererTerminal(t *testing.T) {
	t.Setenv("GLAMOUR_STYLE", "notty")

	out, err := NewRenderer(testRecord()).RenderTerminal(map[string]string{"[NAME]": "Jane"}, 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Hearing letter")
	assert.Contains(t, out, "Jane")
}
