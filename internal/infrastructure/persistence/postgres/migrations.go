package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_routines", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_catchup_plans", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_gamification", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "add_ledger_source_ref", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ROUTINES AND EXECUTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS routines (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    title VARCHAR(120) NOT NULL,
    goal_type VARCHAR(20) NOT NULL CHECK (goal_type IN ('frequency_based', 'schedule_based')),
    -- flattened goal parameters, exactly one group populated
    goal JSONB NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_routines_user ON routines(user_id, created_at) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_routines_live_frequency ON routines(created_at)
    WHERE deleted_at IS NULL AND is_active AND goal_type = 'frequency_based';

CREATE TABLE IF NOT EXISTS execution_records (
    id UUID PRIMARY KEY,
    routine_id UUID NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    executed_at TIMESTAMPTZ NOT NULL,
    is_completed BOOLEAN NOT NULL,
    duration_ms BIGINT CHECK (duration_ms IS NULL OR duration_ms >= 0),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_executions_routine_time ON execution_records(routine_id, executed_at)
    WHERE deleted_at IS NULL;

-- bumped on every write so caches can key on it
CREATE TABLE IF NOT EXISTS routine_revisions (
    routine_id UUID PRIMARY KEY,
    revision BIGINT NOT NULL DEFAULT 0
);
`

const migration001Down = `
DROP TABLE IF EXISTS routine_revisions;
DROP TABLE IF EXISTS execution_records;
DROP TABLE IF EXISTS routines;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CATCH-UP PLANS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS catchup_plans (
    routine_id UUID NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    target_period_start TIMESTAMPTZ NOT NULL,
    target_period_end TIMESTAMPTZ NOT NULL,
    original_target INTEGER NOT NULL CHECK (original_target >= 1),
    current_progress INTEGER NOT NULL CHECK (current_progress >= 0),
    remaining_target INTEGER NOT NULL CHECK (remaining_target >= 0),
    suggested_daily_target INTEGER NOT NULL CHECK (suggested_daily_target >= 0),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (routine_id, target_period_start),
    CHECK (target_period_end > target_period_start)
);

CREATE INDEX IF NOT EXISTS idx_catchup_active_end ON catchup_plans(target_period_end) WHERE is_active;
`

const migration002Down = `
DROP TABLE IF EXISTS catchup_plans;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROFILES AND XP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id TEXT PRIMARY KEY,
    level INTEGER NOT NULL CHECK (level >= 1),
    total_xp BIGINT NOT NULL CHECK (total_xp >= 0),
    current_xp BIGINT NOT NULL CHECK (current_xp >= 0),
    next_level_xp BIGINT NOT NULL CHECK (next_level_xp > 0),
    streak INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
    longest_streak INTEGER NOT NULL DEFAULT 0 CHECK (longest_streak >= streak),
    version BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CHECK (current_xp < next_level_xp)
);

CREATE TABLE IF NOT EXISTS xp_transactions (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES user_profiles(user_id),
    amount BIGINT NOT NULL CHECK (amount >= 0),
    reason TEXT NOT NULL DEFAULT '',
    source_type VARCHAR(30) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    seq BIGSERIAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_xp_transactions_user ON xp_transactions(user_id, seq);
`

const migration003Down = `
DROP TABLE IF EXISTS xp_transactions;
DROP TABLE IF EXISTS user_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: LEDGER SOURCE REFS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
ALTER TABLE xp_transactions ADD COLUMN IF NOT EXISTS source_ref TEXT NOT NULL DEFAULT '';

CREATE UNIQUE INDEX IF NOT EXISTS idx_xp_transactions_source_ref
    ON xp_transactions (user_id, source_ref) WHERE source_ref <> '';
`

const migration004Down = `
DROP INDEX IF EXISTS idx_xp_transactions_source_ref;
ALTER TABLE xp_transactions DROP COLUMN IF EXISTS source_ref;
`
