package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Store misses
	ErrNotFound = errors.New("resource not found")

	// Data-condition errors, local to one group or one group pair.
	// These must never abort sibling groups.
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrSingularMatrix   = errors.New("correlation matrix is singular or not positive semi-definite")
	ErrEmptyGroup       = errors.New("group predicate matched zero rows")

	// Caller contract violations. Fatal to the whole run.
	ErrInvalidConfiguration = errors.New("invalid analysis configuration")

	// Input errors
	ErrUnknownColumn = errors.New("unknown column")
	ErrRaggedRow     = errors.New("row length does not match column count")
)

// Error constructors with context
func NewInsufficientDataError(need, got int) error {
	return fmt.Errorf("%w: need at least %d complete rows, got %d", ErrInsufficientData, need, got)
}

func NewSingularMatrixError(reason string) error {
	return fmt.Errorf("%w: %s", ErrSingularMatrix, reason)
}

func NewEmptyGroupError(key GroupKey) error {
	return fmt.Errorf("%w: %s", ErrEmptyGroup, key)
}

func NewConfigurationError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfiguration, field, reason)
}

func NewUnknownColumnError(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnitFailure reports whether err is local to one group or pair and must
// not abort the rest of the run.
func IsUnitFailure(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrSingularMatrix) ||
		errors.Is(err, ErrEmptyGroup)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsInputError reports whether err stems from malformed caller input rather
// than a data condition inside an analysis unit.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnknownColumn) || errors.Is(err, ErrRaggedRow)
}
