package consistency

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

func rec(id string, tags ...string) models.TemplateRecord {
	return models.TemplateRecord{
		ID:        id,
		EntryType: models.EntryResource,
		Name:      "Record " + id,
		FullText:  "Body of " + id,
		Tags:      tags,
	}
}

func TestTagOrderIsNotDrift(t *testing.T) {
	a := []models.TemplateRecord{rec("a1", "X", "Y")}
	b := []models.TemplateRecord{rec("a1", "Y", "X")}

	report := Diff(a, b)
	assert.True(t, report.Clean())
	assert.Empty(t, report.Mismatches)
	assert.Equal(t, Summary{Identical: 1}, report.Summary)
}

func TestTagDuplicatesAreNotDrift(t *testing.T) {
	report := Diff(
		[]models.TemplateRecord{rec("a1", "X", "X", "Y")},
		[]models.TemplateRecord{rec("a1", "Y", "X", "Y")},
	)
	assert.True(t, report.Clean())
}

func TestTagWhitespaceIsDrift(t *testing.T) {
	report := Diff(
		[]models.TemplateRecord{rec("a1", "X", " Y")},
		[]models.TemplateRecord{rec("a1", "Y", "X")},
	)
	assert.False(t, report.Clean())
	assert.Equal(t, []RecordDrift{{
		ID:     "a1",
		Fields: []FieldDrift{{Field: "tags", A: `" Y", X`, B: "X, Y"}},
	}}, report.Mismatches)
}

func TestDiffReportsFieldDriftInModelOrder(t *testing.T) {
	left := rec("r", "Hague", "Legal")
	right := left.Clone()
	right.Email = "ca@example.org"
	right.Tags = []string{"Hague"}
	right.Name = "Renamed"
	right.FullText = "Dear [NAME],"

	report := Diff([]models.TemplateRecord{left}, []models.TemplateRecord{right})

	want := []RecordDrift{{
		ID: "r",
		Fields: []FieldDrift{
			{Field: "name", A: "Record r", B: "Renamed"},
			{Field: "full_text", A: "Body of r", B: "Dear [NAME],"},
			{Field: "tags", A: "Hague, Legal", B: "Hague"},
			{Field: "email", A: "", B: "ca@example.org"},
		},
	}}
	if diff := cmp.Diff(want, report.Mismatches); diff != "" {
		t.Errorf("mismatches (-want +got):\n%s", diff)
	}
	assert.Equal(t, Summary{Drifted: 1}, report.Summary)
	assert.False(t, report.Clean())
}

func TestDiffUniqueIDs(t *testing.T) {
	a := []models.TemplateRecord{rec("c", "X"), rec("shared", "X"), rec("a", "X")}
	b := []models.TemplateRecord{rec("shared", "X"), rec("z", "X"), rec("b", "X")}

	report := Diff(a, b)
	assert.Equal(t, []string{"a", "c"}, report.OnlyInA)
	assert.Equal(t, []string{"b", "z"}, report.OnlyInB)
	assert.Equal(t, Summary{Identical: 1, OnlyInA: 2, OnlyInB: 2}, report.Summary)
}

func collections() [][]models.TemplateRecord {
	drifted := rec("b", "Y")
	drifted.Summary = "changed"
	return [][]models.TemplateRecord{
		nil,
		{rec("a", "X")},
		{rec("a", "X"), rec("b", "Y")},
		{rec("b", "Y"), rec("c", "Z")},
		{drifted, rec("a", "X", "W")},
		{rec("a", "X"), rec("a", "X")},
	}
}

func TestDiffSymmetry(t *testing.T) {
	for i, a := range collections() {
		for j, b := range collections() {
			ab, ba := Diff(a, b), Diff(b, a)
			assert.Equal(t, ab.OnlyInA, ba.OnlyInB, "pair %d,%d", i, j)
			assert.Equal(t, ab.OnlyInB, ba.OnlyInA, "pair %d,%d", i, j)
			assert.Equal(t, ab.Summary.Drifted, ba.Summary.Drifted, "pair %d,%d", i, j)
			assert.Equal(t, ab.DuplicatesInA, ba.DuplicatesInB, "pair %d,%d", i, j)
		}
	}
}

func TestDiffWithItselfIsClean(t *testing.T) {
	for i, a := range collections()[:5] {
		report := Diff(a, a)
		assert.True(t, report.Clean(), "collection %d", i)
		assert.Empty(t, report.OnlyInA)
		assert.Empty(t, report.OnlyInB)
		assert.Empty(t, report.Mismatches)
		assert.Equal(t, len(a), report.Summary.Identical)
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	a := []models.TemplateRecord{rec("a", "Y", "X"), rec("b", "Z")}
	b := []models.TemplateRecord{rec("a", "X"), rec("c", "Q")}
	aCopy := []models.TemplateRecord{a[0].Clone(), a[1].Clone()}
	bCopy := []models.TemplateRecord{b[0].Clone(), b[1].Clone()}

	first := Diff(a, b)
	second := Diff(a, b)

	assert.Equal(t, aCopy, a)
	assert.Equal(t, bCopy, b)
	assert.Equal(t, first, second)
}

func TestDuplicateIDsWithinOneSide(t *testing.T) {
	a := []models.TemplateRecord{rec("a", "X"), rec("b", "X"), rec("a", "Y"), rec("a", "Z")}
	b := []models.TemplateRecord{rec("a", "Z"), rec("b", "X")}

	report := Diff(a, b)
	assert.Equal(t, []string{"a"}, report.DuplicatesInA)
	assert.Empty(t, report.DuplicatesInB)
	assert.Empty(t, report.Mismatches, "last occurrence is compared")
	assert.False(t, report.Clean())
}

func TestFormatAndAppError(t *testing.T) {
	a := []models.TemplateRecord{rec("a", "X"), rec("gone", "X")}
	changed := rec("a", "X")
	changed.Summary = "line one\nline two"
	b := []models.TemplateRecord{changed}

	report := Diff(a, b)

	var buf bytes.Buffer
	require.NoError(t, report.Format(&buf))
	out := buf.String()
	assert.Contains(t, out, "identical: 0, drifted: 1, only in A: 1, only in B: 0")
	assert.Contains(t, out, "only in A:\n  gone\n")
	assert.Contains(t, out, `B: "line one\nline two"`)

	appErr := report.ToAppError()
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeDriftDetected, appErr.Code)

	buf.Reset()
	clean := Diff(a, a)
	require.NoError(t, clean.Format(&buf))
	assert.Contains(t, buf.String(), "no drift")
	assert.Nil(t, clean.ToAppError())
}
