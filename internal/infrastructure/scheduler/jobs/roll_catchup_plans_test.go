package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/application/command"
)

type stubRoller struct {
	got command.RollCatchupPlansCommand
	res *command.RollCatchupPlansResult
	err error
}

func (s *stubRoller) Handle(_ context.Context, cmd command.RollCatchupPlansCommand) (*command.RollCatchupPlansResult, error) {
	s.got = cmd
	return s.res, s.err
}

func TestRollCatchupPlansJob_Run(t *testing.T) {
	roller := &stubRoller{res: &command.RollCatchupPlansResult{Scanned: 2, Rolled: 2}}
	job := NewRollCatchupPlansJob(roller, 50)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 50, roller.got.BatchSize)
	assert.NotEmpty(t, roller.got.CorrelationID)
	assert.Equal(t, RollCatchupPlansName, job.Name())
}

func TestRollCatchupPlansJob_ReportsFailures(t *testing.T) {
	roller := &stubRoller{res: &command.RollCatchupPlansResult{Scanned: 3, Rolled: 2, Failed: 1}}
	err := NewRollCatchupPlansJob(roller, 0).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")

	boom := errors.New("boom")
	roller.err = boom
	assert.ErrorIs(t, NewRollCatchupPlansJob(roller, 0).Run(context.Background()), boom)
}
