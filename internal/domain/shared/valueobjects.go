package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies the owner of routines and of a gamification profile.
// It is issued by the external identity collaborator and is opaque here.
type UserID string

// String returns the string representation.
func (u UserID) String() string { return string(u) }

// IsEmpty reports whether the ID is blank.
func (u UserID) IsEmpty() bool { return strings.TrimSpace(string(u)) == "" }

// NewUserID validates an externally supplied user identifier.
func NewUserID(id string) (UserID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "user id is empty")
	}
	return UserID(id), nil
}

// RoutineID is a UUID identifying a routine.
type RoutineID string

// NewRoutineID generates a fresh routine identifier.
func NewRoutineID() RoutineID { return RoutineID(uuid.NewString()) }

// ParseRoutineID validates a routine identifier.
func ParseRoutineID(s string) (RoutineID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", WrapError("shared", "ParseRoutineID", ErrInvalidID, "routine id is not a uuid", err)
	}
	return RoutineID(id.String()), nil
}

// String returns the string representation.
func (r RoutineID) String() string { return string(r) }

// ExecutionID is a UUID identifying an execution record.
type ExecutionID string

// NewExecutionID generates a fresh execution identifier.
func NewExecutionID() ExecutionID { return ExecutionID(uuid.NewString()) }

// ParseExecutionID validates an execution identifier.
func ParseExecutionID(s string) (ExecutionID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", WrapError("shared", "ParseExecutionID", ErrInvalidID, "execution id is not a uuid", err)
	}
	return ExecutionID(id.String()), nil
}

// String returns the string representation.
func (e ExecutionID) String() string { return string(e) }

// TransactionID is a UUID identifying an XP ledger entry.
type TransactionID string

// NewTransactionID generates a fresh ledger entry identifier.
func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }

// String returns the string representation.
func (t TransactionID) String() string { return string(t) }
