// internal/database/errors.go
package database

import "errors"

// StoreError is a typed failure carrying a short machine-readable code. The
// lobby and match services surface these unchanged; the gateway maps them to
// protocol errors without exposing SQL state.
type StoreError struct {
	Code string
}

func (e *StoreError) Error() string {
	return e.Code
}

// Err builds a StoreError from a code string.
func Err(code string) error {
	return &StoreError{Code: code}
}

// CodeOf extracts the machine-readable code from an error chain, or
// "internal_error" for anything untyped.
func CodeOf(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return "internal_error"
}

// IsCode reports whether err carries the given store code.
func IsCode(err error, code string) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == code
}
