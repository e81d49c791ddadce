// Package validation checks template records before they are indexed.
//
// Content is hand-authored and inconsistency is expected, so validation is
// diagnostic: Validate never fails on a bad record, it reports every
// (field, reason) violation. Whether an invalid record is dropped or aborts
// the whole build is the caller's Policy.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dpshade/pocket-kb/internal/errors"
	"github.com/dpshade/pocket-kb/internal/models"
)

// Violation codes
const (
	CodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	CodePatternMismatch      = "PATTERN_MISMATCH"
	CodeInvalidOption        = "INVALID_OPTION"
	CodeEmptyTagSet          = "EMPTY_TAG_SET"
)

// idPattern accepts any non-empty id without leading or trailing whitespace
var idPattern = regexp.MustCompile(`^\S(?:.*\S)?$`)

// FieldValidator provides validation rules for one string field of a record
type FieldValidator struct {
	Name     string
	Required bool
	Pattern  *regexp.Regexp
	Options  []string
	Get      func(models.TemplateRecord) string
}

// ValidationResult represents the result of validating one record
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func entryTypeOptions() []string {
	types := models.AllEntryTypes()
	opts := make([]string, len(types))
	for i, t := range types {
		opts[i] = string(t)
	}
	return opts
}

// recordFields lists the scalar checks in report order
var recordFields = []FieldValidator{
	{
		Name:     "id",
		Required: true,
		Pattern:  idPattern,
		Get:      func(r models.TemplateRecord) string { return r.ID },
	},
	{
		Name:     "entry_type",
		Required: true,
		Options:  entryTypeOptions(),
		Get:      func(r models.TemplateRecord) string { return string(r.EntryType) },
	},
	{
		Name:     "name",
		Required: true,
		Get:      func(r models.TemplateRecord) string { return r.Name },
	},
	{
		Name:     "full_text",
		Required: true,
		Get:      func(r models.TemplateRecord) string { return r.FullText },
	},
}

// Validate checks one record and reports every violation
func Validate(record models.TemplateRecord) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, field := range recordFields {
		validateField(field, field.Get(record), &result)
	}

	if len(record.TagSet()) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   "tags",
			Code:    CodeEmptyTagSet,
			Message: "at least one tag is required; untagged records cannot be found by faceted search",
		})
	}

	return result
}

// validateField validates a single field
func validateField(validator FieldValidator, value string, result *ValidationResult) {
	if strings.TrimSpace(value) == "" {
		if validator.Required {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   validator.Name,
				Code:    CodeRequiredFieldMissing,
				Message: fmt.Sprintf("field '%s' is required", validator.Name),
			})
		}
		return
	}

	if validator.Pattern != nil && !validator.Pattern.MatchString(value) {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   validator.Name,
			Code:    CodePatternMismatch,
			Message: fmt.Sprintf("field '%s' must not have leading or trailing whitespace", validator.Name),
			Value:   value,
		})
	}

	if len(validator.Options) > 0 {
		for _, option := range validator.Options {
			if value == option {
				return
			}
		}
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   validator.Name,
			Code:    CodeInvalidOption,
			Message: fmt.Sprintf("field '%s' must be one of: %s", validator.Name, strings.Join(validator.Options, ", ")),
			Value:   value,
		})
	}
}

// ToAppError converts a failed result to an AppError
func (result ValidationResult) ToAppError() *errors.AppError {
	if result.Valid {
		return nil
	}

	if len(result.Errors) == 0 {
		return errors.ValidationError("Validation failed")
	}

	appErr := errors.ValidationError(result.Errors[0].Message)

	details := make([]string, len(result.Errors))
	for i, validationErr := range result.Errors {
		details[i] = validationErr.String()
	}
	appErr.WithDetails(strings.Join(details, "; "))
	appErr.WithContext("validation_errors", result.Errors)

	return appErr
}
