package ledger

import (
	"errors"
	"fmt"
)

// Error categories. Handlers map these to HTTP status codes.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrCapacity   = errors.New("capacity exhausted")
	ErrStorage    = errors.New("storage failure")
)

var (
	ErrItemNotFound     = fmt.Errorf("hardware %w", ErrNotFound)
	ErrLoanNotFound     = fmt.Errorf("issue record %w", ErrNotFound)
	ErrDuplicateCode    = fmt.Errorf("%w: hardware code already exists", ErrConflict)
	ErrAlreadyReturned  = fmt.Errorf("%w: hardware already returned", ErrConflict)
	ErrItemHasOpenLoans = fmt.Errorf("%w: hardware has units on loan", ErrConflict)
	ErrNoAvailableUnits = fmt.Errorf("%w: no available units to issue", ErrCapacity)
)

// ValidationError carries a message meant for the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StorageError wraps a backend failure with the operation that hit it.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
