package routine

import (
	"context"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// Repository persists routines. Implementations return shared.ErrRoutineNotFound
// for unknown or soft-deleted IDs unless stated otherwise.
type Repository interface {
	// Save creates or updates a routine.
	Save(ctx context.Context, r *Routine) error

	// GetByID returns a routine, including deactivated ones.
	GetByID(ctx context.Context, id shared.RoutineID) (*Routine, error)

	// ListByUser returns the user's routines that are not soft-deleted.
	ListByUser(ctx context.Context, userID shared.UserID, opts ListOptions) ([]*Routine, error)

	// ListActiveFrequencyBased returns every live frequency-based routine.
	// The catch-up rollover job walks this list.
	ListActiveFrequencyBased(ctx context.Context, opts ListOptions) ([]*Routine, error)
}

// ExecutionRepository persists execution records.
type ExecutionRepository interface {
	// Save creates or updates a record.
	Save(ctx context.Context, e *ExecutionRecord) error

	// GetByID returns a record.
	GetByID(ctx context.Context, id shared.ExecutionID) (*ExecutionRecord, error)

	// ListByRoutine returns non-deleted records executed at or after since,
	// ordered by executed_at ascending. A zero since returns the full history.
	ListByRoutine(ctx context.Context, routineID shared.RoutineID, since time.Time) ([]*ExecutionRecord, error)

	// DeleteByRoutine hard-deletes every record of a routine.
	DeleteByRoutine(ctx context.Context, routineID shared.RoutineID) (int, error)

	// Revision returns a value that changes whenever the routine's records change.
	Revision(ctx context.Context, routineID shared.RoutineID) (int64, error)
}

// CatchupPlanRepository persists derived catch-up plans.
type CatchupPlanRepository interface {
	// Upsert stores the plan keyed by (routine, period start).
	Upsert(ctx context.Context, p *CatchupPlan) error

	// GetActive returns the active plan of a routine or shared.ErrCatchupPlanMissing.
	GetActive(ctx context.Context, routineID shared.RoutineID) (*CatchupPlan, error)

	// ListExpired returns active plans whose period ended at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*CatchupPlan, error)

	// DeactivateByRoutine closes every active plan of a routine.
	DeactivateByRoutine(ctx context.Context, routineID shared.RoutineID, now time.Time) error
}

// ListOptions contains pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 100}
}
