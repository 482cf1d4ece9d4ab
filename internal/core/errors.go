package core

import "fmt"

// ValidationError describes a single rejected field on an ingested record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func errEmptyField(field string) error {
	return &ValidationError{Field: field, Reason: "must not be empty"}
}

func errNonPositive(field string) error {
	return &ValidationError{Field: field, Reason: "must be positive"}
}

func errNegative(field string) error {
	return &ValidationError{Field: field, Reason: "must not be negative"}
}

func errBadEnum(field, got string) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("unknown value %q", got)}
}
