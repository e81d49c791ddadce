package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

func validRecord(id string) models.TemplateRecord {
	return models.TemplateRecord{
		ID:        id,
		EntryType: models.EntryTemplate,
		Name:      "Letter to Central Authority",
		FullText:  "Dear [NAME],",
		Tags:      []string{"Legal"},
	}
}

func fields(result ValidationResult) []string {
	var out []string
	for _, e := range result.Errors {
		out = append(out, e.Field+":"+e.Code)
	}
	return out
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	result := Validate(validRecord("letter-1"))
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Nil(t, result.ToAppError())
}

func TestValidateReportsEveryViolation(t *testing.T) {
	result := Validate(models.TemplateRecord{EntryType: "letter", Tags: []string{" ", ""}})

	assert.False(t, result.Valid)
	assert.Equal(t, []string{
		"id:" + CodeRequiredFieldMissing,
		"entry_type:" + CodeInvalidOption,
		"name:" + CodeRequiredFieldMissing,
		"full_text:" + CodeRequiredFieldMissing,
		"tags:" + CodeEmptyTagSet,
	}, fields(result))
}

func TestValidateIDPattern(t *testing.T) {
	for _, id := range []string{" padded", "padded ", "\ttab"} {
		result := Validate(validRecord(id))
		assert.Equal(t, []string{"id:" + CodePatternMismatch}, fields(result), "id %q", id)
	}

	for _, id := range []string{"a", "hague-letter-01", "US Mexico guide"} {
		assert.True(t, Validate(validRecord(id)).Valid, "id %q", id)
	}
}

func TestValidateMissingEntryType(t *testing.T) {
	r := validRecord("x")
	r.EntryType = ""
	assert.Equal(t, []string{"entry_type:" + CodeRequiredFieldMissing}, fields(Validate(r)))
}

func TestValidationResultToAppError(t *testing.T) {
	r := validRecord("x")
	r.Name = ""
	r.Tags = nil

	appErr := Validate(r).ToAppError()
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeValidation, appErr.Code)
	assert.Contains(t, appErr.Details, "name: field 'name' is required")
	assert.Contains(t, appErr.Details, "tags:")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyExclude, p)

	p, err = ParsePolicy(" Abort ")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestApplyExcludeKeepsValidRecordsInOrder(t *testing.T) {
	bad := validRecord("bad")
	bad.FullText = ""
	records := []models.TemplateRecord{validRecord("a"), bad, validRecord("c")}

	kept, report, err := Apply(records, PolicyExclude)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, []string{kept[0].ID, kept[1].ID})
	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Invalid, 1)
	assert.Equal(t, 1, report.Invalid[0].Index)
	assert.Equal(t, "bad", report.Invalid[0].ID)
}

func TestApplyAbortFailsBuild(t *testing.T) {
	bad := validRecord("bad")
	bad.Tags = nil

	kept, report, err := Apply([]models.TemplateRecord{validRecord("a"), bad}, PolicyAbort)
	require.Error(t, err)
	assert.Nil(t, kept)
	assert.False(t, report.Valid())
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	assert.Contains(t, errors.GetAppError(err).Details, `#1 "bad"`)
}

func TestApplyAllValidReturnsInput(t *testing.T) {
	records := []models.TemplateRecord{validRecord("a")}
	kept, report, err := Apply(records, PolicyAbort)
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Equal(t, records, kept)
}
