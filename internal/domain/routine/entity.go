// Package routine contains the routine aggregate and the pure scheduling and
// progress reconciliation engine: recurrence evaluation, progress
// aggregation, streaks and catch-up analysis.
package routine

import (
	"strings"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// MaxTitleLength bounds routine titles.
const MaxTitleLength = 120

// Routine is a recurring personal goal owned by one user.
type Routine struct {
	ID        shared.RoutineID
	UserID    shared.UserID
	Title     string
	Goal      Goal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // nil unless soft-deleted
}

// NewRoutine creates an active routine. The goal must come from one of the
// validating goal constructors.
func NewRoutine(id shared.RoutineID, userID shared.UserID, title string, goal Goal, now time.Time) (*Routine, error) {
	if id == "" {
		return nil, shared.NewDomainError("routine", "New", shared.ErrInvalidID, "routine id is empty")
	}
	if userID.IsEmpty() {
		return nil, shared.NewDomainError("routine", "New", shared.ErrInvalidID, "user id is empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, shared.NewDomainError("routine", "New", shared.ErrEmptyValue, "title is empty")
	}
	if len([]rune(title)) > MaxTitleLength {
		return nil, shared.NewDomainError("routine", "New", shared.ErrValueOutOfRange, "title is too long")
	}
	if goal == nil {
		return nil, shared.ErrInvalidGoal
	}

	return &Routine{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Goal:      goal,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsDeleted reports whether the routine was soft-deleted.
func (r *Routine) IsDeleted() bool {
	return r.DeletedAt != nil
}

// IsLive reports whether the routine participates in tracking.
func (r *Routine) IsLive() bool {
	return r.IsActive && !r.IsDeleted()
}

// Deactivate pauses tracking.
func (r *Routine) Deactivate(now time.Time) error {
	if r.IsDeleted() {
		return shared.ErrRoutineDeleted
	}
	r.IsActive = false
	r.UpdatedAt = now
	return nil
}

// Activate resumes tracking.
func (r *Routine) Activate(now time.Time) error {
	if r.IsDeleted() {
		return shared.ErrRoutineDeleted
	}
	r.IsActive = true
	r.UpdatedAt = now
	return nil
}

// SoftDelete marks the routine deleted. Deleting twice is a no-op.
func (r *Routine) SoftDelete(now time.Time) {
	if r.IsDeleted() {
		return
	}
	r.IsActive = false
	r.DeletedAt = &now
	r.UpdatedAt = now
}

// FrequencyGoal returns the goal when the routine is frequency-based.
func (r *Routine) FrequencyGoal() (FrequencyGoal, bool) {
	g, ok := r.Goal.(FrequencyGoal)
	return g, ok
}

// ScheduleGoal returns the goal when the routine is schedule-based.
func (r *Routine) ScheduleGoal() (ScheduleGoal, bool) {
	g, ok := r.Goal.(ScheduleGoal)
	return g, ok
}

// IsDailySchedule reports whether the routine is schedule-based with a daily rule.
func (r *Routine) IsDailySchedule() bool {
	g, ok := r.ScheduleGoal()
	return ok && g.IsDaily()
}
