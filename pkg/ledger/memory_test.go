package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

func testKey(id string) meeting.Key {
	return meeting.Key{
		EventID: id,
		StartAt: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
}

func TestTryClaimIsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := testKey("ev_1")

	claimed, err := m.TryClaim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = m.TryClaim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim for the same key must lose")

	entry, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, entry.Status)
	assert.False(t, entry.ClaimedAt.IsZero())
}

func TestTryClaimDistinctOccurrences(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := testKey("ev_standup")
	second := first
	second.StartAt = first.StartAt.Add(24 * time.Hour)

	claimed, err := m.TryClaim(ctx, first)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = m.TryClaim(ctx, second)
	require.NoError(t, err)
	assert.True(t, claimed, "same event id with a different start is a new occurrence")
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	key := testKey("ev_1")

	t.Run("records the outcome", func(t *testing.T) {
		m := NewMemory()
		_, err := m.TryClaim(ctx, key)
		require.NoError(t, err)

		require.NoError(t, m.Finalize(ctx, key, nwerrors.OutcomeSuccess))

		entry, err := m.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, StatusFinalized, entry.Status)
		assert.Equal(t, nwerrors.OutcomeSuccess, entry.Outcome)
		assert.False(t, entry.FinalizedAt.IsZero())
	})

	t.Run("duplicate with same outcome is idempotent", func(t *testing.T) {
		m := NewMemory()
		_, err := m.TryClaim(ctx, key)
		require.NoError(t, err)

		require.NoError(t, m.Finalize(ctx, key, nwerrors.OutcomeJoinTimeout))
		assert.NoError(t, m.Finalize(ctx, key, nwerrors.OutcomeJoinTimeout))
	})

	t.Run("duplicate with different outcome fails loudly", func(t *testing.T) {
		m := NewMemory()
		_, err := m.TryClaim(ctx, key)
		require.NoError(t, err)

		require.NoError(t, m.Finalize(ctx, key, nwerrors.OutcomeSuccess))
		err = m.Finalize(ctx, key, nwerrors.OutcomeBotRemoved)
		assert.True(t, nwerrors.IsOutcomeMismatch(err))

		// The original outcome survives.
		entry, getErr := m.Get(ctx, key)
		require.NoError(t, getErr)
		assert.Equal(t, nwerrors.OutcomeSuccess, entry.Outcome)
	})

	t.Run("unclaimed key is rejected", func(t *testing.T) {
		m := NewMemory()
		err := m.Finalize(ctx, key, nwerrors.OutcomeSuccess)
		assert.ErrorIs(t, err, nwerrors.ErrNotClaimed)
	})

	t.Run("unknown outcome is rejected", func(t *testing.T) {
		m := NewMemory()
		_, err := m.TryClaim(ctx, key)
		require.NoError(t, err)
		assert.Error(t, m.Finalize(ctx, key, nwerrors.Outcome("EXPLODED")))
	})
}

func TestGetUnknownKey(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), testKey("ev_missing"))
	assert.True(t, nwerrors.IsNotFound(err))
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := NewMemoryWithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	})

	for _, id := range []string{"ev_a", "ev_b", "ev_c"} {
		_, err := m.TryClaim(ctx, testKey(id))
		require.NoError(t, err)
	}

	entries, err := m.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ev_c", entries[0].Key.EventID)
	assert.Equal(t, "ev_b", entries[1].Key.EventID)
}
