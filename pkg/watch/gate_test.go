package watch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/ledger"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
	"github.com/otherjamesbrown/notewatch/pkg/results"
)

func candidate(id string, start time.Time) meeting.Candidate {
	return meeting.Candidate{
		EventID:       id,
		Summary:       "Meeting " + id,
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
		ConferenceURL: "https://meet.example.com/" + id,
	}
}

func newTestGate() (*Gate, ledger.Ledger, results.Recorder) {
	lg := ledger.NewMemory()
	rec := results.NewMemory()
	return NewGate(lg, rec, 2*time.Minute, 15*time.Minute, nil), lg, rec
}

func TestEligibleWindow(t *testing.T) {
	g, _, _ := newTestGate()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	c := candidate("ev_a", start)

	assert.False(t, g.Eligible(c, start.Add(-3*time.Minute)))
	assert.True(t, g.Eligible(c, start.Add(-2*time.Minute)), "window opens inclusively")
	assert.True(t, g.Eligible(c, start))
	assert.True(t, g.Eligible(c, start.Add(15*time.Minute)), "window closes inclusively")
	assert.False(t, g.Eligible(c, start.Add(15*time.Minute+time.Second)))
}

func TestSelectEarliestStartWins(t *testing.T) {
	ctx := context.Background()
	g, lg, rec := newTestGate()

	a := candidate("ev_a", time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	b := candidate("ev_b", time.Date(2026, 3, 10, 10, 5, 0, 0, time.UTC))
	now := a.StartAt.Add(6 * time.Minute) // both windows open

	winner, err := g.Select(ctx, now, []meeting.Candidate{b, a})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "ev_a", winner.EventID)

	// The loser is terminal in the same tick: claimed, finalized, recorded.
	entry, err := lg.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, entry.Status)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, entry.Outcome)

	skipped, err := rec.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, skipped.Outcome)
	assert.Empty(t, skipped.Attempts)
}

func TestSelectTieBreaksOnEventID(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGate()

	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	a := candidate("ev_a", start)
	b := candidate("ev_b", start)

	winner, err := g.Select(ctx, start, []meeting.Candidate{b, a})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "ev_a", winner.EventID, "equal starts break on the smaller event id")
}

func TestSelectLeavesFutureCandidatesUntouched(t *testing.T) {
	ctx := context.Background()
	g, lg, _ := newTestGate()

	a := candidate("ev_a", time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	b := candidate("ev_b", time.Date(2026, 3, 10, 10, 5, 0, 0, time.UTC))
	now := a.StartAt.Add(-time.Minute) // 09:59: only a's window is open

	winner, err := g.Select(ctx, now, []meeting.Candidate{a, b})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "ev_a", winner.EventID)

	// b is not skipped; it was never eligible this tick and keeps its shot.
	_, err = lg.Get(ctx, b.Key())
	assert.True(t, nwerrors.IsNotFound(err))
}

func TestSelectRePresentationIsNoOp(t *testing.T) {
	ctx := context.Background()
	g, lg, rec := newTestGate()

	a := candidate("ev_a", time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	now := a.StartAt

	winner, err := g.Select(ctx, now, []meeting.Candidate{a})
	require.NoError(t, err)
	require.NotNil(t, winner)
	require.NoError(t, lg.Finalize(ctx, a.Key(), nwerrors.OutcomeSuccess))

	// The same occurrence shows up on the next tick; nothing happens.
	winner, err = g.Select(ctx, now.Add(time.Minute), []meeting.Candidate{a})
	require.NoError(t, err)
	assert.Nil(t, winner)

	_, err = rec.Get(ctx, a.Key())
	assert.True(t, nwerrors.IsNotFound(err), "re-presentation never writes a record")
}

func TestSelectDropsMalformedCandidates(t *testing.T) {
	ctx := context.Background()
	g, _, _ := newTestGate()

	bad := candidate("ev_bad", time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	bad.ConferenceURL = ""

	winner, err := g.Select(ctx, bad.StartAt, []meeting.Candidate{bad})
	require.NoError(t, err)
	assert.Nil(t, winner)
}

func TestSelectNoEligibleCandidates(t *testing.T) {
	g, _, _ := newTestGate()
	winner, err := g.Select(context.Background(), time.Now().UTC(), nil)
	require.NoError(t, err)
	assert.Nil(t, winner)
}

// flakyRecorder fails Record a fixed number of times before delegating.
type flakyRecorder struct {
	results.Recorder
	failures int
}

func (r *flakyRecorder) Record(ctx context.Context, rec *results.Record) error {
	if r.failures > 0 {
		r.failures--
		return fmt.Errorf("result store unavailable: %w", nwerrors.ErrTransient)
	}
	return r.Recorder.Record(ctx, rec)
}

// flakyLedger fails Finalize a fixed number of times before delegating.
type flakyLedger struct {
	ledger.Ledger
	failures int
}

func (l *flakyLedger) Finalize(ctx context.Context, key meeting.Key, outcome nwerrors.Outcome) error {
	if l.failures > 0 {
		l.failures--
		return fmt.Errorf("ledger unavailable: %w", nwerrors.ErrTransient)
	}
	return l.Ledger.Finalize(ctx, key, outcome)
}

func TestSelectSkipWriteFailureKeepsWinner(t *testing.T) {
	ctx := context.Background()
	lg := ledger.NewMemory()
	rec := &flakyRecorder{Recorder: results.NewMemory(), failures: 1}
	g := NewGate(lg, rec, 2*time.Minute, 15*time.Minute, nil)

	a := candidate("ev_a", time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	b := candidate("ev_b", time.Date(2026, 3, 10, 10, 5, 0, 0, time.UTC))
	now := a.StartAt.Add(6 * time.Minute)

	// The loser's skip record fails; the winner is still handed out.
	winner, err := g.Select(ctx, now, []meeting.Candidate{a, b})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "ev_a", winner.EventID)

	entry, err := lg.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, entry.Status)
	_, err = rec.Get(ctx, b.Key())
	require.True(t, nwerrors.IsNotFound(err))

	// The next tick notices the missing skip record and writes it.
	winner, err = g.Select(ctx, now.Add(time.Minute), []meeting.Candidate{a, b})
	require.NoError(t, err)
	assert.Nil(t, winner)

	skipped, err := rec.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, skipped.Outcome)
}

func TestSelectRepairsLoserStrandedByFinalizeFailure(t *testing.T) {
	ctx := context.Background()
	lg := &flakyLedger{Ledger: ledger.NewMemory(), failures: 1}
	rec := results.NewMemory()
	g := NewGate(lg, rec, 2*time.Minute, 15*time.Minute, nil)

	a := candidate("ev_a", time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	b := candidate("ev_b", time.Date(2026, 3, 10, 10, 5, 0, 0, time.UTC))
	now := a.StartAt.Add(6 * time.Minute)

	// The loser's finalize fails, leaving its claim in progress.
	winner, err := g.Select(ctx, now, []meeting.Candidate{a, b})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "ev_a", winner.EventID)

	entry, err := lg.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusInProgress, entry.Status)

	// The next tick finishes the skip: finalized and recorded.
	winner, err = g.Select(ctx, now.Add(time.Minute), []meeting.Candidate{a, b})
	require.NoError(t, err)
	assert.Nil(t, winner)

	entry, err = lg.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, entry.Status)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, entry.Outcome)

	skipped, err := rec.Get(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, skipped.Outcome)
}
