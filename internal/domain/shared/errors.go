// Package shared contains common domain types, errors and events that are
// used across the routine and gamification domains.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrNotApplicable = errors.New("operation not applicable")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrLockUnavailable        = errors.New("lock unavailable")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "routine", "gamification"
	Op      string // Operation that failed, e.g., "Define", "AddXP"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Routine domain errors
var (
	ErrRoutineNotFound    = NewDomainError("routine", "Find", ErrNotFound, "routine not found")
	ErrRoutineInactive    = NewDomainError("routine", "CheckStatus", ErrInvalidState, "routine is not active")
	ErrRoutineDeleted     = NewDomainError("routine", "CheckStatus", ErrInvalidState, "routine is deleted")
	ErrInvalidGoal        = NewDomainError("routine", "Define", ErrValidation, "invalid goal definition")
	ErrRecurrenceConfig   = NewDomainError("routine", "Define", ErrValidation, "invalid recurrence configuration")
	ErrNotScheduleBased   = NewDomainError("routine", "Evaluate", ErrNotApplicable, "routine is not schedule-based")
	ErrNotFrequencyBased  = NewDomainError("routine", "Analyze", ErrNotApplicable, "routine is not frequency-based")
	ErrExecutionNotFound  = NewDomainError("routine", "FindExecution", ErrNotFound, "execution record not found")
	ErrExecutionMismatch  = NewDomainError("routine", "RecordExecution", ErrInvalidInput, "execution does not belong to routine")
	ErrCatchupPlanMissing = NewDomainError("routine", "FindCatchupPlan", ErrNotFound, "no active catch-up plan")
)

// Gamification domain errors
var (
	ErrProfileNotFound = NewDomainError("gamification", "Find", ErrNotFound, "profile not found")
	ErrNegativeXP      = NewDomainError("gamification", "AddXP", ErrNegativeValue, "xp amount cannot be negative")
	ErrInvalidSource   = NewDomainError("gamification", "AddXP", ErrInvalidInput, "unknown xp source type")
	ErrProfileConflict = NewDomainError("gamification", "Save", ErrConcurrentModification, "profile was modified concurrently")
	ErrInvalidLevel    = NewDomainError("gamification", "Validate", ErrValueOutOfRange, "level must be at least 1")
	ErrXPOverflow      = NewDomainError("gamification", "AddXP", ErrValueOutOfRange, "total xp would overflow")

	// ErrDuplicateGrant is a conflict: another writer recorded the same
	// source ref first. Reloading the profile resolves it.
	ErrDuplicateGrant = NewDomainError("gamification", "Commit", ErrConcurrentModification, "ledger entry already recorded")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error is a concurrent modification of shared state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrLockUnavailable) ||
		errors.Is(err, ErrConcurrentModification)
}
