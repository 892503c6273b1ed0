package domain

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidInputError reports a malformed reading or date. It is surfaced to the
// caller and never retried.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownLocationError reports a location name or code outside the encoding
// table. It is surfaced to the caller and never retried.
type UnknownLocationError struct {
	Location string
}

func (e *UnknownLocationError) Error() string {
	return fmt.Sprintf("unknown location %q", e.Location)
}

// ClassifierUnavailableError wraps a transient classifier failure. It is the
// only error class the batch service retries.
type ClassifierUnavailableError struct {
	Err error
}

func (e *ClassifierUnavailableError) Error() string {
	return fmt.Sprintf("classifier unavailable: %v", e.Err)
}

func (e *ClassifierUnavailableError) Unwrap() error { return e.Err }

// SchemaMismatchError reports a disagreement between the feature schema and
// the loaded classifier. Serving with a wrong feature order corrupts every
// prediction, so this is fatal at startup and rejects a reload.
type SchemaMismatchError struct {
	Expected []string
	Got      []string
	Reason   string
}

func (e *SchemaMismatchError) Error() string {
	if e.Reason != "" {
		return "feature schema mismatch: " + e.Reason
	}
	return fmt.Sprintf("feature schema mismatch: expected %d features [%s], got %d [%s]",
		len(e.Expected), strings.Join(e.Expected, ","), len(e.Got), strings.Join(e.Got, ","))
}

// IsRetryable reports whether err is a transient classifier failure.
func IsRetryable(err error) bool {
	var unavailable *ClassifierUnavailableError
	return errors.As(err, &unavailable)
}

// IsInputError reports whether err is caused by caller input.
func IsInputError(err error) bool {
	var invalid *InvalidInputError
	var unknown *UnknownLocationError
	return errors.As(err, &invalid) || errors.As(err, &unknown)
}
