package gamification

import (
	"context"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ProfileRepository persists profiles with optimistic concurrency.
type ProfileRepository interface {
	// Get returns the profile or shared.ErrProfileNotFound.
	Get(ctx context.Context, userID shared.UserID) (*Profile, error)

	// Commit stores p if the stored version still equals expectedVersion and,
	// in the same unit of work, appends entries to the ledger. A missing
	// profile is created when expectedVersion is 0. On success p.Version is
	// advanced. A version mismatch yields shared.ErrProfileConflict; an entry
	// whose SourceRef is already in the user's ledger yields
	// shared.ErrDuplicateGrant and nothing is written.
	Commit(ctx context.Context, p *Profile, expectedVersion int64, entries []XPTransaction) error

	// SourceRefs returns the non-empty source refs of the user's ledger that
	// start with prefix.
	SourceRefs(ctx context.Context, userID shared.UserID, prefix string) ([]string, error)
}

// LedgerRepository reads the XP ledger.
type LedgerRepository interface {
	// ListByUser returns a user's entries in insertion order.
	ListByUser(ctx context.Context, userID shared.UserID) ([]XPTransaction, error)

	// SumByUser returns the total XP granted to a user.
	SumByUser(ctx context.Context, userID shared.UserID) (int64, error)
}
