package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func fast(opts ...Option) []Option {
	return append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, opts...)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errConflict)
		}
		return nil
	}, fast(WithMaxAttempts(5), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}))...)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, fast(WithMaxAttempts(5))...)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttemptsAndUnwraps(t *testing.T) {
	calls := 0

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errConflict)
	}, fast(WithMaxAttempts(3))...)

	assert.Equal(t, errConflict, err)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIf(t *testing.T) {
	calls := 0
	r := ConflictRetrier(4, func(err error) bool { return errors.Is(err, errConflict) }, nil)

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 4, calls)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errConflict)
		}
		return 42, nil
	}, fast()...)

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}
