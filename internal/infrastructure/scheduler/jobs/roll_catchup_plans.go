// Package jobs contains the scheduled jobs of Routine Hub.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alem-hub/routine-hub/internal/application/command"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// RollCatchupPlansName is the scheduler name of RollCatchupPlansJob.
const RollCatchupPlansName = "roll_catchup_plans"

// PlanRoller sweeps expired catch-up plans.
type PlanRoller interface {
	Handle(ctx context.Context, cmd command.RollCatchupPlansCommand) (*command.RollCatchupPlansResult, error)
}

// RollCatchupPlansJob closes catch-up plans whose period ended and opens the
// plan of the current period, so the stored plans stay fresh for routines
// nobody recorded against.
type RollCatchupPlansJob struct {
	roller    PlanRoller
	batchSize int
}

// NewRollCatchupPlansJob creates the job.
func NewRollCatchupPlansJob(roller PlanRoller, batchSize int) *RollCatchupPlansJob {
	return &RollCatchupPlansJob{roller: roller, batchSize: batchSize}
}

func (j *RollCatchupPlansJob) Name() string { return RollCatchupPlansName }

func (j *RollCatchupPlansJob) Description() string {
	return "Rolls expired catch-up plans over to the current period"
}

// Run performs one sweep. Individual routine failures are logged by the
// handler; the run only fails if any routine failed or listing failed.
func (j *RollCatchupPlansJob) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).WithRequestID(runID)

	res, err := j.roller.Handle(logger.WithContext(ctx, log), command.RollCatchupPlansCommand{
		BatchSize:     j.batchSize,
		CorrelationID: runID,
	})
	if err != nil {
		return err
	}

	log.Info("catch-up plans rolled",
		logger.Int("scanned", res.Scanned),
		logger.Int("rolled", res.Rolled),
		logger.Int("closed", res.Closed),
		logger.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d plans failed to roll", res.Failed, res.Scanned)
	}
	return nil
}
