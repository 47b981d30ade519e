package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ProfileRepository implements gamification.ProfileRepository and
// gamification.LedgerRepository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// Get returns the stored profile.
func (r *ProfileRepository) Get(ctx context.Context, userID shared.UserID) (*gamification.Profile, error) {
	query := `
		SELECT user_id, level, total_xp, current_xp, next_level_xp, streak, longest_streak, version, updated_at
		FROM user_profiles WHERE user_id = $1
	`
	var (
		p  gamification.Profile
		id string
	)
	err := r.conn.QueryRow(ctx, query, userID.String()).Scan(
		&id, &p.Level, &p.TotalXP, &p.CurrentXP, &p.NextLevelXP, &p.Streak, &p.LongestStreak, &p.Version, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.UserID = shared.UserID(id)
	return &p, nil
}

// Commit writes p guarded by its version and appends entries in the same
// transaction. Version 0 means the profile must not exist yet.
func (r *ProfileRepository) Commit(ctx context.Context, p *gamification.Profile, expectedVersion int64, entries []gamification.XPTransaction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	next := expectedVersion + 1

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var (
			affected int64
			err      error
		)
		if expectedVersion == 0 {
			affected, err = insertProfile(ctx, tx, p, next)
		} else {
			affected, err = updateProfile(ctx, tx, p, expectedVersion, next)
		}
		if err != nil {
			return err
		}
		if affected == 0 {
			return shared.ErrProfileConflict
		}

		for _, e := range entries {
			if err := appendEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Version = next
	return nil
}

// appendEntry inserts one ledger row. The partial unique index on
// (user_id, source_ref) turns a replayed grant into ErrDuplicateGrant.
func appendEntry(ctx context.Context, tx pgx.Tx, e gamification.XPTransaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO xp_transactions (id, user_id, amount, reason, source_type, source_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID.String(), e.UserID.String(), e.Amount, e.Reason, string(e.SourceType), e.SourceRef, e.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateGrant
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// SourceRefs returns the user's recorded source refs starting with prefix.
func (r *ProfileRepository) SourceRefs(ctx context.Context, userID shared.UserID, prefix string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT source_ref FROM xp_transactions
		WHERE user_id = $1 AND source_ref <> '' AND starts_with(source_ref, $2)
		ORDER BY seq
	`, userID.String(), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list source refs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func insertProfile(ctx context.Context, tx pgx.Tx, p *gamification.Profile, version int64) (int64, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO user_profiles (user_id, level, total_xp, current_xp, next_level_xp, streak, longest_streak, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING
	`, p.UserID.String(), p.Level, p.TotalXP, p.CurrentXP, p.NextLevelXP, p.Streak, p.LongestStreak, version, p.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert profile: %w", err)
	}
	return tag.RowsAffected(), nil
}

func updateProfile(ctx context.Context, tx pgx.Tx, p *gamification.Profile, expected, version int64) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE user_profiles SET
			level = $2, total_xp = $3, current_xp = $4, next_level_xp = $5,
			streak = $6, longest_streak = $7, version = $8, updated_at = $9
		WHERE user_id = $1 AND version = $10
	`, p.UserID.String(), p.Level, p.TotalXP, p.CurrentXP, p.NextLevelXP, p.Streak, p.LongestStreak, version, p.UpdatedAt, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to update profile: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns the user's ledger in insertion order.
func (r *ProfileRepository) ListByUser(ctx context.Context, userID shared.UserID) ([]gamification.XPTransaction, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, amount, reason, source_type, source_ref, created_at
		FROM xp_transactions WHERE user_id = $1 ORDER BY seq
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var out []gamification.XPTransaction
	for rows.Next() {
		var (
			tx         gamification.XPTransaction
			id, user   string
			sourceType string
		)
		if err := rows.Scan(&id, &user, &tx.Amount, &tx.Reason, &sourceType, &tx.SourceRef, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.ID = shared.TransactionID(id)
		tx.UserID = shared.UserID(user)
		tx.SourceType = gamification.SourceType(sourceType)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SumByUser returns the total XP granted to a user.
func (r *ProfileRepository) SumByUser(ctx context.Context, userID shared.UserID) (int64, error) {
	var sum int64
	err := r.conn.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE user_id = $1`, userID.String()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return sum, nil
}

var (
	_ gamification.ProfileRepository = (*ProfileRepository)(nil)
	_ gamification.LedgerRepository  = (*ProfileRepository)(nil)
)
