package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndSentinel(t *testing.T) {
	err := fmt.Errorf("save profile: %w", ErrProfileConflict)

	assert.True(t, errors.Is(err, ErrProfileConflict))
	assert.True(t, errors.Is(err, ErrConcurrentModification))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
}

func TestWrapError_PreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError("routine", "Define", ErrValidation, "bad weekday set", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsValidation(err))
	assert.Equal(t, "routine.Define: bad weekday set: boom", err.Error())
}

func TestParseRoutineID(t *testing.T) {
	id := NewRoutineID()
	parsed, err := ParseRoutineID(id.String())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseRoutineID("not-a-uuid")
	assert.True(t, errors.Is(err, ErrInvalidID))
}

func TestNewUserID_RejectsBlank(t *testing.T) {
	_, err := NewUserID("   ")
	assert.True(t, IsValidation(err))

	id, err := NewUserID(" u-1 ")
	assert.NoError(t, err)
	assert.Equal(t, UserID("u-1"), id)
}
