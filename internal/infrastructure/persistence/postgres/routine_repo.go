package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTINE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RoutineRepository implements routine.Repository for PostgreSQL.
type RoutineRepository struct {
	conn *Connection
}

// NewRoutineRepository creates a new RoutineRepository.
func NewRoutineRepository(conn *Connection) *RoutineRepository {
	return &RoutineRepository{conn: conn}
}

const routineColumns = `id, user_id, title, goal_type, goal, is_active, created_at, updated_at, deleted_at`

// Save upserts a routine.
func (r *RoutineRepository) Save(ctx context.Context, rt *routine.Routine) error {
	goal, err := json.Marshal(routine.DefinitionOf(rt))
	if err != nil {
		return fmt.Errorf("failed to marshal goal: %w", err)
	}

	query := `
		INSERT INTO routines (` + routineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			goal_type = EXCLUDED.goal_type,
			goal = EXCLUDED.goal,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`
	_, err = r.conn.Exec(ctx, query,
		rt.ID.String(),
		rt.UserID.String(),
		rt.Title,
		string(rt.Goal.Type()),
		goal,
		rt.IsActive,
		rt.CreatedAt,
		rt.UpdatedAt,
		rt.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save routine: %w", err)
	}
	return nil
}

// GetByID returns a routine that is not soft-deleted.
func (r *RoutineRepository) GetByID(ctx context.Context, id shared.RoutineID) (*routine.Routine, error) {
	query := `SELECT ` + routineColumns + ` FROM routines WHERE id = $1 AND deleted_at IS NULL`

	rt, err := scanRoutine(r.conn.QueryRow(ctx, query, id.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRoutineNotFound
		}
		return nil, fmt.Errorf("failed to get routine: %w", err)
	}
	return rt, nil
}

// ListByUser returns the user's non-deleted routines.
func (r *RoutineRepository) ListByUser(ctx context.Context, userID shared.UserID, opts routine.ListOptions) ([]*routine.Routine, error) {
	query := `
		SELECT ` + routineColumns + ` FROM routines
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID.String(), limitOf(opts), opts.Offset)
}

// ListActiveFrequencyBased returns every live frequency-based routine.
func (r *RoutineRepository) ListActiveFrequencyBased(ctx context.Context, opts routine.ListOptions) ([]*routine.Routine, error) {
	query := `
		SELECT ` + routineColumns + ` FROM routines
		WHERE deleted_at IS NULL AND is_active AND goal_type = 'frequency_based'
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`
	return r.list(ctx, query, limitOf(opts), opts.Offset)
}

func (r *RoutineRepository) list(ctx context.Context, query string, args ...any) ([]*routine.Routine, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	defer rows.Close()

	var out []*routine.Routine
	for rows.Next() {
		rt, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func scanRoutine(row pgx.Row) (*routine.Routine, error) {
	var (
		rt       routine.Routine
		id, user string
		goalType string
		goal     []byte
	)
	if err := row.Scan(&id, &user, &rt.Title, &goalType, &goal, &rt.IsActive, &rt.CreatedAt, &rt.UpdatedAt, &rt.DeletedAt); err != nil {
		return nil, err
	}

	var def routine.Definition
	if err := json.Unmarshal(goal, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal goal of routine %s: %w", id, err)
	}
	def.Title = rt.Title
	def.GoalType = routine.GoalType(goalType)

	g, err := def.ToGoal()
	if err != nil {
		return nil, fmt.Errorf("stored goal of routine %s: %w", id, err)
	}

	rt.ID = shared.RoutineID(id)
	rt.UserID = shared.UserID(user)
	rt.Goal = g
	return &rt, nil
}

func limitOf(opts routine.ListOptions) int {
	if opts.Limit <= 0 {
		return routine.DefaultListOptions().Limit
	}
	return opts.Limit
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ExecutionRepository implements routine.ExecutionRepository for PostgreSQL.
type ExecutionRepository struct {
	conn *Connection
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(conn *Connection) *ExecutionRepository {
	return &ExecutionRepository{conn: conn}
}

const executionColumns = `id, routine_id, user_id, executed_at, is_completed, duration_ms, created_at, updated_at, deleted_at`

const bumpRevision = `
	INSERT INTO routine_revisions (routine_id, revision) VALUES ($1, 1)
	ON CONFLICT (routine_id) DO UPDATE SET revision = routine_revisions.revision + 1
`

// Save upserts a record and bumps the routine's revision in one transaction.
func (r *ExecutionRepository) Save(ctx context.Context, e *routine.ExecutionRecord) error {
	var durationMS *int64
	if e.Duration != nil {
		ms := e.Duration.Milliseconds()
		durationMS = &ms
	}

	query := `
		INSERT INTO execution_records (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			executed_at = EXCLUDED.executed_at,
			is_completed = EXCLUDED.is_completed,
			duration_ms = EXCLUDED.duration_ms,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
		WHERE execution_records.routine_id = EXCLUDED.routine_id
	`

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			e.ID.String(),
			e.RoutineID.String(),
			e.UserID.String(),
			e.ExecutedAt,
			e.IsCompleted,
			durationMS,
			e.CreatedAt,
			e.UpdatedAt,
			e.DeletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save execution: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrExecutionMismatch
		}
		if _, err := tx.Exec(ctx, bumpRevision, e.RoutineID.String()); err != nil {
			return fmt.Errorf("failed to bump revision: %w", err)
		}
		return nil
	})
}

// GetByID returns a record, including soft-deleted ones.
func (r *ExecutionRepository) GetByID(ctx context.Context, id shared.ExecutionID) (*routine.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records WHERE id = $1`

	e, err := scanExecution(r.conn.QueryRow(ctx, query, id.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// ListByRoutine returns non-deleted records at or after since, oldest first.
func (r *ExecutionRepository) ListByRoutine(ctx context.Context, routineID shared.RoutineID, since time.Time) ([]*routine.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + ` FROM execution_records
		WHERE routine_id = $1 AND deleted_at IS NULL AND ($2::timestamptz IS NULL OR executed_at >= $2)
		ORDER BY executed_at, id
	`
	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	rows, err := r.conn.Query(ctx, query, routineID.String(), sinceArg)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*routine.ExecutionRecord
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteByRoutine hard-deletes every record of a routine.
func (r *ExecutionRepository) DeleteByRoutine(ctx context.Context, routineID shared.RoutineID) (int, error) {
	var n int64
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM execution_records WHERE routine_id = $1`, routineID.String())
		if err != nil {
			return fmt.Errorf("failed to delete executions: %w", err)
		}
		n = tag.RowsAffected()
		if n == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, bumpRevision, routineID.String())
		return err
	})
	return int(n), err
}

// Revision returns the routine's change counter.
func (r *ExecutionRepository) Revision(ctx context.Context, routineID shared.RoutineID) (int64, error) {
	var rev int64
	err := r.conn.QueryRow(ctx, `SELECT revision FROM routine_revisions WHERE routine_id = $1`, routineID.String()).Scan(&rev)
	if err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return rev, nil
}

func scanExecution(row pgx.Row) (*routine.ExecutionRecord, error) {
	var (
		e                     routine.ExecutionRecord
		id, routineID, userID string
		durationMS            *int64
	)
	if err := row.Scan(&id, &routineID, &userID, &e.ExecutedAt, &e.IsCompleted, &durationMS, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return nil, err
	}
	e.ID = shared.ExecutionID(id)
	e.RoutineID = shared.RoutineID(routineID)
	e.UserID = shared.UserID(userID)
	if durationMS != nil {
		d := time.Duration(*durationMS) * time.Millisecond
		e.Duration = &d
	}
	return &e, nil
}

var (
	_ routine.Repository          = (*RoutineRepository)(nil)
	_ routine.ExecutionRepository = (*ExecutionRepository)(nil)
)
