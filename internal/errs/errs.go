// Package errs holds the error taxonomy shared by the loader, the storage
// backends and the query layer. Callers match with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput marks unparsable XML, a missing expected element or an
	// unresolvable code reference. The current load stage is aborted.
	ErrMalformedInput = errors.New("malformed input")

	// ErrConflict is returned when the destination store already holds a load
	// and overwrite was not requested.
	ErrConflict = errors.New("destination already exists")

	// ErrIntegrity marks loaded data that breaks a model invariant, such as an
	// Ogr code without its typed row or a referential with mixed leaf kinds.
	ErrIntegrity = errors.New("integrity violation")

	// ErrNotFound is returned by lookups when the requested code is absent.
	ErrNotFound = errors.New("not found")
)

// Malformed wraps err as ErrMalformedInput for operation op.
func Malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrMalformedInput, err)
}

// Malformedf builds an ErrMalformedInput error from a format string.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// Integrityf builds an ErrIntegrity error from a format string.
func Integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}
