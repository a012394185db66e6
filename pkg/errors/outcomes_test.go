package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeWireValues(t *testing.T) {
	// These literals are consumed by downstream agents; a rename here is a
	// breaking change, not a refactor.
	assert.Equal(t, "success", string(OutcomeSuccess))
	assert.Equal(t, "JOIN_TIMEOUT", string(OutcomeJoinTimeout))
	assert.Equal(t, "WAITING_ROOM_TIMEOUT", string(OutcomeWaitingRoomTimeout))
	assert.Equal(t, "DISCONNECTED_TIMEOUT", string(OutcomeDisconnectedTimeout))
	assert.Equal(t, "BOT_REMOVED", string(OutcomeBotRemoved))
	assert.Equal(t, "SKIPPED_OVERLAP_CONFLICT", string(OutcomeSkippedOverlap))
	assert.Equal(t, "MAX_DURATION_EXCEEDED", string(OutcomeMaxDurationExceeded))
	assert.Equal(t, "CANCELLED", string(OutcomeCancelled))
}

func TestOutcomeRegistryIsComplete(t *testing.T) {
	for outcome, info := range OutcomeRegistry {
		assert.Equal(t, outcome, info.Outcome)
		assert.NotEmpty(t, info.Class, "outcome %s has no class", outcome)
		assert.NotEmpty(t, info.Description, "outcome %s has no description", outcome)
	}
}

func TestOutcomeValid(t *testing.T) {
	assert.True(t, OutcomeSuccess.Valid())
	assert.True(t, OutcomeBotRemoved.Valid())
	assert.False(t, Outcome("EXPLODED").Valid())
	assert.False(t, Outcome("").Valid())
}

func TestOutcomeIsFailure(t *testing.T) {
	assert.False(t, OutcomeSuccess.IsFailure())
	assert.True(t, OutcomeJoinTimeout.IsFailure())
	assert.True(t, OutcomeCancelled.IsFailure())
	assert.False(t, Outcome("EXPLODED").IsFailure())
}

func TestOutcomeClass(t *testing.T) {
	assert.Equal(t, ClassSuccess, OutcomeSuccess.Class())
	assert.Equal(t, ClassTiming, OutcomeJoinTimeout.Class())
	assert.Equal(t, ClassTiming, OutcomeWaitingRoomTimeout.Class())
	assert.Equal(t, ClassTiming, OutcomeDisconnectedTimeout.Class())
	assert.Equal(t, ClassTiming, OutcomeMaxDurationExceeded.Class())
	assert.Equal(t, ClassExternal, OutcomeBotRemoved.Class())
	assert.Equal(t, ClassPolicy, OutcomeSkippedOverlap.Class())
	assert.Equal(t, ClassOperator, OutcomeCancelled.Class())
	assert.Equal(t, OutcomeClass(""), Outcome("EXPLODED").Class())
}

func TestSentinelHelpers(t *testing.T) {
	wrapped := wrap(ErrOutcomeMismatch)
	assert.True(t, IsOutcomeMismatch(wrapped))
	assert.False(t, IsOutcomeMismatch(ErrNotFound))

	assert.True(t, IsNotFound(wrap(ErrNotFound)))
	assert.True(t, IsAlreadyClaimed(wrap(ErrAlreadyClaimed)))
	assert.True(t, IsTransient(wrap(ErrTransient)))
	assert.True(t, Is(wrap(ErrAlreadyRecorded), ErrAlreadyRecorded))
}

func wrap(err error) error {
	return &wrapper{err: err}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }
