// Package memory provides in-process implementations of the domain
// repositories. They back the routinectl CLI and the application tests and
// share the contracts of the postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// RoutineRepository is a map-backed routine.Repository.
type RoutineRepository struct {
	mu       sync.RWMutex
	routines map[shared.RoutineID]*routine.Routine
}

// NewRoutineRepository creates an empty repository.
func NewRoutineRepository() *RoutineRepository {
	return &RoutineRepository{routines: make(map[shared.RoutineID]*routine.Routine)}
}

func cloneRoutine(r *routine.Routine) *routine.Routine {
	c := *r
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Save stores a copy of r.
func (m *RoutineRepository) Save(_ context.Context, r *routine.Routine) error {
	if r == nil || r.ID == "" {
		return shared.NewDomainError("memory", "SaveRoutine", shared.ErrInvalidID, "routine id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routines[r.ID] = cloneRoutine(r)
	return nil
}

// GetByID returns the routine unless it is unknown or soft-deleted.
func (m *RoutineRepository) GetByID(_ context.Context, id shared.RoutineID) (*routine.Routine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routines[id]
	if !ok || r.IsDeleted() {
		return nil, shared.ErrRoutineNotFound
	}
	return cloneRoutine(r), nil
}

// ListByUser returns the user's non-deleted routines ordered by creation time.
func (m *RoutineRepository) ListByUser(_ context.Context, userID shared.UserID, opts routine.ListOptions) ([]*routine.Routine, error) {
	return m.list(opts, func(r *routine.Routine) bool {
		return r.UserID == userID && !r.IsDeleted()
	}), nil
}

// ListActiveFrequencyBased returns every live frequency-based routine.
func (m *RoutineRepository) ListActiveFrequencyBased(_ context.Context, opts routine.ListOptions) ([]*routine.Routine, error) {
	return m.list(opts, func(r *routine.Routine) bool {
		_, ok := r.FrequencyGoal()
		return ok && r.IsLive()
	}), nil
}

func (m *RoutineRepository) list(opts routine.ListOptions, keep func(*routine.Routine) bool) []*routine.Routine {
	m.mu.RLock()
	out := make([]*routine.Routine, 0, len(m.routines))
	for _, r := range m.routines {
		if keep(r) {
			out = append(out, cloneRoutine(r))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, opts)
}

func page[T any](items []T, opts routine.ListOptions) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTIONS
// ══════════════════════════════════════════════════════════════════════════════

// ExecutionRepository is a map-backed routine.ExecutionRepository.
type ExecutionRepository struct {
	mu        sync.RWMutex
	records   map[shared.ExecutionID]*routine.ExecutionRecord
	revisions map[shared.RoutineID]int64
}

// NewExecutionRepository creates an empty repository.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		records:   make(map[shared.ExecutionID]*routine.ExecutionRecord),
		revisions: make(map[shared.RoutineID]int64),
	}
}

func cloneExecution(e *routine.ExecutionRecord) *routine.ExecutionRecord {
	c := *e
	if e.Duration != nil {
		d := *e.Duration
		c.Duration = &d
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Save stores a copy of e and bumps the routine's revision.
func (m *ExecutionRepository) Save(_ context.Context, e *routine.ExecutionRecord) error {
	if e == nil || e.ID == "" {
		return shared.NewDomainError("memory", "SaveExecution", shared.ErrInvalidID, "execution id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.records[e.ID]; ok && prev.RoutineID != e.RoutineID {
		return shared.ErrExecutionMismatch
	}
	m.records[e.ID] = cloneExecution(e)
	m.revisions[e.RoutineID]++
	return nil
}

// GetByID returns a record, including soft-deleted ones.
func (m *ExecutionRepository) GetByID(_ context.Context, id shared.ExecutionID) (*routine.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.records[id]
	if !ok {
		return nil, shared.ErrExecutionNotFound
	}
	return cloneExecution(e), nil
}

// ListByRoutine returns non-deleted records at or after since, oldest first.
func (m *ExecutionRepository) ListByRoutine(_ context.Context, routineID shared.RoutineID, since time.Time) ([]*routine.ExecutionRecord, error) {
	m.mu.RLock()
	out := make([]*routine.ExecutionRecord, 0)
	for _, e := range m.records {
		if e.RoutineID != routineID || e.IsDeleted() {
			continue
		}
		if !since.IsZero() && e.ExecutedAt.Before(since) {
			continue
		}
		out = append(out, cloneExecution(e))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	return out, nil
}

// DeleteByRoutine removes every record of a routine.
func (m *ExecutionRepository) DeleteByRoutine(_ context.Context, routineID shared.RoutineID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.records {
		if e.RoutineID == routineID {
			delete(m.records, id)
			n++
		}
	}
	if n > 0 {
		m.revisions[routineID]++
	}
	return n, nil
}

// Revision returns the routine's change counter.
func (m *ExecutionRepository) Revision(_ context.Context, routineID shared.RoutineID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revisions[routineID], nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATCH-UP PLANS
// ══════════════════════════════════════════════════════════════════════════════

type planKey struct {
	routineID shared.RoutineID
	start     int64
}

// CatchupPlanRepository is a map-backed routine.CatchupPlanRepository.
type CatchupPlanRepository struct {
	mu    sync.RWMutex
	plans map[planKey]routine.CatchupPlan
}

// NewCatchupPlanRepository creates an empty repository.
func NewCatchupPlanRepository() *CatchupPlanRepository {
	return &CatchupPlanRepository{plans: make(map[planKey]routine.CatchupPlan)}
}

// Upsert stores the plan keyed by routine and period start.
func (m *CatchupPlanRepository) Upsert(_ context.Context, p *routine.CatchupPlan) error {
	if p == nil || p.RoutineID == "" {
		return shared.NewDomainError("memory", "UpsertPlan", shared.ErrInvalidID, "routine id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[planKey{p.RoutineID, p.TargetPeriodStart.UnixNano()}] = *p
	return nil
}

// GetActive returns the latest active plan of a routine.
func (m *CatchupPlanRepository) GetActive(_ context.Context, routineID shared.RoutineID) (*routine.CatchupPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *routine.CatchupPlan
	for k, p := range m.plans {
		if k.routineID != routineID || !p.IsActive {
			continue
		}
		if best == nil || p.TargetPeriodStart.After(best.TargetPeriodStart) {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return nil, shared.ErrCatchupPlanMissing
	}
	return best, nil
}

// ListExpired returns active plans whose period ended at or before now.
func (m *CatchupPlanRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*routine.CatchupPlan, error) {
	m.mu.RLock()
	out := make([]*routine.CatchupPlan, 0)
	for _, p := range m.plans {
		if p.IsActive && p.IsExpired(now) {
			cp := p
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].TargetPeriodEnd.Before(out[j].TargetPeriodEnd)
	})
	return page(out, routine.ListOptions{Limit: limit}), nil
}

// DeactivateByRoutine closes every active plan of a routine.
func (m *CatchupPlanRepository) DeactivateByRoutine(_ context.Context, routineID shared.RoutineID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, p := range m.plans {
		if k.routineID == routineID && p.IsActive {
			p.Deactivate(now)
			m.plans[k] = p
		}
	}
	return nil
}

var (
	_ routine.Repository            = (*RoutineRepository)(nil)
	_ routine.ExecutionRepository   = (*ExecutionRepository)(nil)
	_ routine.CatchupPlanRepository = (*CatchupPlanRepository)(nil)
)
