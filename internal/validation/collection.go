package validation

import (
	"fmt"
	"strings"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

// Policy decides what an invalid record does to a collection build
type Policy string

const (
	// PolicyExclude drops invalid records and reports them as warnings
	PolicyExclude Policy = "exclude"
	// PolicyAbort fails the whole build if any record is invalid
	PolicyAbort Policy = "abort"
)

// ParsePolicy converts a configuration value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyExclude, "":
		return PolicyExclude, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("unknown validation policy %q (want %q or %q)", s, PolicyExclude, PolicyAbort)
	}
}

// RecordDiagnostics are the violations of one invalid record
type RecordDiagnostics struct {
	Index  int               `json:"index"` // Position in the input collection
	ID     string            `json:"id"`
	Errors []ValidationError `json:"errors"`
}

// CollectionReport lists every invalid record in input order
type CollectionReport struct {
	Total   int                 `json:"total"`
	Invalid []RecordDiagnostics `json:"invalid,omitempty"`
}

// Valid reports whether every record passed
func (r CollectionReport) Valid() bool {
	return len(r.Invalid) == 0
}

// ValidateCollection validates each record independently
func ValidateCollection(records []models.TemplateRecord) CollectionReport {
	report := CollectionReport{Total: len(records)}
	for i, record := range records {
		result := Validate(record)
		if !result.Valid {
			report.Invalid = append(report.Invalid, RecordDiagnostics{
				Index:  i,
				ID:     record.ID,
				Errors: result.Errors,
			})
		}
	}
	return report
}

// Apply validates records and enforces the policy. With PolicyExclude it
// returns the valid records (input order preserved) and the report; with
// PolicyAbort any invalid record yields a validation AppError and no records.
func Apply(records []models.TemplateRecord, policy Policy) ([]models.TemplateRecord, CollectionReport, error) {
	report := ValidateCollection(records)
	if report.Valid() {
		return records, report, nil
	}

	if policy == PolicyAbort {
		return nil, report, report.ToAppError()
	}

	invalid := make(map[int]bool, len(report.Invalid))
	for _, diag := range report.Invalid {
		invalid[diag.Index] = true
	}
	kept := make([]models.TemplateRecord, 0, len(records)-len(report.Invalid))
	for i, record := range records {
		if !invalid[i] {
			kept = append(kept, record)
		}
	}
	return kept, report, nil
}

// ToAppError summarises an invalid collection
func (r CollectionReport) ToAppError() *errors.AppError {
	if r.Valid() {
		return nil
	}

	lines := make([]string, 0, len(r.Invalid))
	for _, diag := range r.Invalid {
		reasons := make([]string, len(diag.Errors))
		for i, e := range diag.Errors {
			reasons[i] = e.String()
		}
		lines = append(lines, fmt.Sprintf("#%d %q: %s", diag.Index, diag.ID, strings.Join(reasons, ", ")))
	}

	appErr := errors.ValidationError(fmt.Sprintf("%d of %d records are invalid", len(r.Invalid), r.Total))
	appErr.WithDetails(strings.Join(lines, "; "))
	appErr.WithContext("invalid_records", r.Invalid)
	return appErr
}
