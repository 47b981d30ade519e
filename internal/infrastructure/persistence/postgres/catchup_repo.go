package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// CatchupPlanRepository implements routine.CatchupPlanRepository for PostgreSQL.
type CatchupPlanRepository struct {
	conn *Connection
}

// NewCatchupPlanRepository creates a new CatchupPlanRepository.
func NewCatchupPlanRepository(conn *Connection) *CatchupPlanRepository {
	return &CatchupPlanRepository{conn: conn}
}

const planColumns = `routine_id, user_id, target_period_start, target_period_end, original_target,
	current_progress, remaining_target, suggested_daily_target, is_active, updated_at`

// Upsert stores the plan keyed by routine and period start.
func (r *CatchupPlanRepository) Upsert(ctx context.Context, p *routine.CatchupPlan) error {
	query := `
		INSERT INTO catchup_plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (routine_id, target_period_start) DO UPDATE SET
			target_period_end = EXCLUDED.target_period_end,
			original_target = EXCLUDED.original_target,
			current_progress = EXCLUDED.current_progress,
			remaining_target = EXCLUDED.remaining_target,
			suggested_daily_target = EXCLUDED.suggested_daily_target,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		p.RoutineID.String(),
		p.UserID.String(),
		p.TargetPeriodStart,
		p.TargetPeriodEnd,
		p.OriginalTarget,
		p.CurrentProgress,
		p.RemainingTarget,
		p.SuggestedDailyTarget,
		p.IsActive,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert catch-up plan: %w", err)
	}
	return nil
}

// GetActive returns the latest active plan of a routine.
func (r *CatchupPlanRepository) GetActive(ctx context.Context, routineID shared.RoutineID) (*routine.CatchupPlan, error) {
	query := `
		SELECT ` + planColumns + ` FROM catchup_plans
		WHERE routine_id = $1 AND is_active
		ORDER BY target_period_start DESC
		LIMIT 1
	`
	p, err := scanPlan(r.conn.QueryRow(ctx, query, routineID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCatchupPlanMissing
		}
		return nil, fmt.Errorf("failed to get catch-up plan: %w", err)
	}
	return p, nil
}

// ListExpired returns active plans whose period ended at or before now.
func (r *CatchupPlanRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*routine.CatchupPlan, error) {
	if limit <= 0 {
		limit = routine.DefaultListOptions().Limit
	}
	query := `
		SELECT ` + planColumns + ` FROM catchup_plans
		WHERE is_active AND target_period_end <= $1
		ORDER BY target_period_end
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired plans: %w", err)
	}
	defer rows.Close()

	var out []*routine.CatchupPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeactivateByRoutine closes every active plan of a routine.
func (r *CatchupPlanRepository) DeactivateByRoutine(ctx context.Context, routineID shared.RoutineID, now time.Time) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE catchup_plans SET is_active = FALSE, updated_at = $2 WHERE routine_id = $1 AND is_active`,
		routineID.String(), now)
	if err != nil {
		return fmt.Errorf("failed to deactivate plans: %w", err)
	}
	return nil
}

func scanPlan(row pgx.Row) (*routine.CatchupPlan, error) {
	var (
		p                 routine.CatchupPlan
		routineID, userID string
	)
	err := row.Scan(&routineID, &userID, &p.TargetPeriodStart, &p.TargetPeriodEnd, &p.OriginalTarget,
		&p.CurrentProgress, &p.RemainingTarget, &p.SuggestedDailyTarget, &p.IsActive, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.RoutineID = shared.RoutineID(routineID)
	p.UserID = shared.UserID(userID)
	return &p, nil
}

var _ routine.CatchupPlanRepository = (*CatchupPlanRepository)(nil)
