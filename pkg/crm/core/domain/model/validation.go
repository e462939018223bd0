package model

import "fmt"

// ValidationErrorKind classifies a validation failure.
type ValidationErrorKind string

const (
	KindMissingField      ValidationErrorKind = "missing_field"
	KindInvalidFormat     ValidationErrorKind = "invalid_format"
	KindDuplicateKey      ValidationErrorKind = "duplicate_key"
	KindUnsupportedEntity ValidationErrorKind = "unsupported_entity"
)

// ValidationError describes one problem found in one row before submission.
// Values are created by the validator and never mutated afterwards.
type ValidationError struct {
	Row     int
	Field   string
	Kind    ValidationErrorKind
	Value   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// IsSkippable marks validation errors as recoverable by skipping the row.
func (e ValidationError) IsSkippable() bool {
	return true
}

// RowsWithErrors returns the set of row indexes referenced by errs.
func RowsWithErrors(errs []ValidationError) map[int]struct{} {
	rows := make(map[int]struct{}, len(errs))
	for _, e := range errs {
		rows[e.Row] = struct{}{}
	}
	return rows
}
