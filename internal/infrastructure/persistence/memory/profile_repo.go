package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ProfileRepository keeps profiles and the XP ledger behind one mutex so a
// commit updates both or neither.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[shared.UserID]gamification.Profile
	ledger   map[shared.UserID][]gamification.XPTransaction
}

// NewProfileRepository creates an empty repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles: make(map[shared.UserID]gamification.Profile),
		ledger:   make(map[shared.UserID][]gamification.XPTransaction),
	}
}

// Get returns a copy of the stored profile.
func (m *ProfileRepository) Get(_ context.Context, userID shared.UserID) (*gamification.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return &p, nil
}

// Commit compares the stored version with expectedVersion, rejects entries
// whose source ref is already recorded, then writes the profile and appends
// entries.
func (m *ProfileRepository) Commit(_ context.Context, p *gamification.Profile, expectedVersion int64, entries []gamification.XPTransaction) error {
	if p == nil {
		return shared.NewDomainError("memory", "CommitProfile", shared.ErrInvalidInput, "profile is nil")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.profiles[p.UserID]
	switch {
	case !ok && expectedVersion != 0:
		return shared.ErrProfileConflict
	case ok && stored.Version != expectedVersion:
		return shared.ErrProfileConflict
	}

	seen := make(map[string]bool)
	for _, tx := range m.ledger[p.UserID] {
		if tx.SourceRef != "" {
			seen[tx.SourceRef] = true
		}
	}
	for _, e := range entries {
		if e.SourceRef == "" {
			continue
		}
		if seen[e.SourceRef] {
			return shared.ErrDuplicateGrant
		}
		seen[e.SourceRef] = true
	}

	next := *p
	next.Version = expectedVersion + 1
	m.profiles[p.UserID] = next
	m.ledger[p.UserID] = append(m.ledger[p.UserID], entries...)
	p.Version = next.Version
	return nil
}

// SourceRefs returns the user's recorded source refs starting with prefix.
func (m *ProfileRepository) SourceRefs(_ context.Context, userID shared.UserID, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, tx := range m.ledger[userID] {
		if tx.SourceRef != "" && strings.HasPrefix(tx.SourceRef, prefix) {
			out = append(out, tx.SourceRef)
		}
	}
	return out, nil
}

// ListByUser returns the user's ledger in insertion order.
func (m *ProfileRepository) ListByUser(_ context.Context, userID shared.UserID) ([]gamification.XPTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]gamification.XPTransaction(nil), m.ledger[userID]...), nil
}

// SumByUser returns the total XP granted to a user.
func (m *ProfileRepository) SumByUser(_ context.Context, userID shared.UserID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	for _, tx := range m.ledger[userID] {
		sum += tx.Amount
	}
	return sum, nil
}

var (
	_ gamification.ProfileRepository = (*ProfileRepository)(nil)
	_ gamification.LedgerRepository  = (*ProfileRepository)(nil)
)
