package routine

import (
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ExecutionRecord is a completion event for a routine. Records are append-only
// apart from explicit corrections (Correct, SoftDelete).
type ExecutionRecord struct {
	ID          shared.ExecutionID
	RoutineID   shared.RoutineID
	UserID      shared.UserID
	ExecutedAt  time.Time
	IsCompleted bool
	Duration    *time.Duration
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// NewExecutionRecord creates a record for a routine.
func NewExecutionRecord(id shared.ExecutionID, r *Routine, executedAt time.Time, completed bool, duration *time.Duration, now time.Time) (*ExecutionRecord, error) {
	if id == "" {
		return nil, shared.NewDomainError("routine", "RecordExecution", shared.ErrInvalidID, "execution id is empty")
	}
	if r == nil {
		return nil, shared.ErrRoutineNotFound
	}
	if r.IsDeleted() {
		return nil, shared.ErrRoutineDeleted
	}
	if executedAt.IsZero() {
		return nil, shared.NewDomainError("routine", "RecordExecution", shared.ErrEmptyValue, "executed_at is empty")
	}
	if duration != nil && *duration < 0 {
		return nil, shared.NewDomainError("routine", "RecordExecution", shared.ErrNegativeValue, "duration cannot be negative")
	}

	return &ExecutionRecord{
		ID:          id,
		RoutineID:   r.ID,
		UserID:      r.UserID,
		ExecutedAt:  executedAt,
		IsCompleted: completed,
		Duration:    duration,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Correction is a soft edit of an existing record. Nil fields are left unchanged.
type Correction struct {
	ExecutedAt  *time.Time
	IsCompleted *bool
	Duration    *time.Duration
}

// Correct applies a soft correction.
func (e *ExecutionRecord) Correct(c Correction, now time.Time) error {
	if e.IsDeleted() {
		return shared.NewDomainError("routine", "CorrectExecution", shared.ErrInvalidState, "execution is deleted")
	}
	if c.ExecutedAt != nil {
		if c.ExecutedAt.IsZero() {
			return shared.NewDomainError("routine", "CorrectExecution", shared.ErrEmptyValue, "executed_at is empty")
		}
		e.ExecutedAt = *c.ExecutedAt
	}
	if c.IsCompleted != nil {
		e.IsCompleted = *c.IsCompleted
	}
	if c.Duration != nil {
		if *c.Duration < 0 {
			return shared.NewDomainError("routine", "CorrectExecution", shared.ErrNegativeValue, "duration cannot be negative")
		}
		d := *c.Duration
		e.Duration = &d
	}
	e.UpdatedAt = now
	return nil
}

// SoftDelete hides the record from all aggregations.
func (e *ExecutionRecord) SoftDelete(now time.Time) {
	if e.IsDeleted() {
		return
	}
	e.DeletedAt = &now
	e.UpdatedAt = now
}

// IsDeleted reports whether the record was soft-deleted.
func (e *ExecutionRecord) IsDeleted() bool {
	return e.DeletedAt != nil
}

// Counts reports whether the record contributes to progress.
func (e *ExecutionRecord) Counts() bool {
	return e != nil && e.IsCompleted && !e.IsDeleted()
}
