package watch

import (
	"context"
	"sort"
	"time"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/ledger"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
	"github.com/otherjamesbrown/notewatch/pkg/observability"
	"github.com/otherjamesbrown/notewatch/pkg/results"
)

// Gate applies the join-window and overlap policy to one tick's candidates.
//
// A candidate is eligible while now is inside [start−before, start+after].
// Among eligible candidates the earliest start wins; ties break on the
// lexicographically smallest event id, so concurrent or repeated ticks agree
// on the same winner. Losers are claimed and finalized
// SKIPPED_OVERLAP_CONFLICT in the same tick, never deferred.
type Gate struct {
	ledger   ledger.Ledger
	recorder results.Recorder
	before   time.Duration
	after    time.Duration
	logger   logging.Logger
	metrics  *observability.Metrics
}

// NewGate creates a join window gate. before/after bound the eligibility
// window around a candidate's scheduled start.
func NewGate(lg ledger.Ledger, rec results.Recorder, before, after time.Duration, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Gate{
		ledger:   lg,
		recorder: rec,
		before:   before,
		after:    after,
		logger:   logger.With(logging.F("component", "gate")),
	}
}

// WithMetrics attaches gate metrics.
func (g *Gate) WithMetrics(m *observability.Metrics) *Gate {
	g.metrics = m
	return g
}

// Eligible reports whether the candidate's join window contains now.
func (g *Gate) Eligible(c meeting.Candidate, now time.Time) bool {
	open := c.StartAt.Add(-g.before)
	close := c.StartAt.Add(g.after)
	return !now.Before(open) && !now.After(close)
}

// Select picks at most one candidate to supervise this tick and claims it in
// the ledger. All other eligible candidates lose the overlap tie-break: they
// are claimed, finalized SKIPPED_OVERLAP_CONFLICT, and recorded before Select
// returns. Candidates whose key is already in the ledger pass through
// silently; that is what makes re-presenting a finalized occurrence a no-op.
//
// Select can return a non-nil winner together with an error. The winner's
// claim has already been written, so the caller must supervise it anyway.
func (g *Gate) Select(ctx context.Context, now time.Time, candidates []meeting.Candidate) (*meeting.Candidate, error) {
	eligible := make([]meeting.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			g.logger.Warn("dropping malformed candidate", logging.Err(err))
			continue
		}
		if g.Eligible(c, now) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].StartAt.Equal(eligible[j].StartAt) {
			return eligible[i].StartAt.Before(eligible[j].StartAt)
		}
		return eligible[i].EventID < eligible[j].EventID
	})

	var winner *meeting.Candidate
	for i := range eligible {
		c := eligible[i]
		claimed, err := g.ledger.TryClaim(ctx, c.Key())
		if err != nil {
			return winner, err
		}
		if !claimed {
			if i > 0 {
				g.repair(ctx, c, now)
			}
			continue
		}

		if winner == nil {
			winner = &eligible[i]
			g.logger.Info("candidate selected",
				logging.F("key", c.Key().String()),
				logging.F("summary", c.Summary))
			continue
		}

		// Overlap loser: terminal in the same tick. A failed skip write is
		// never fatal to the tick; the claim survives and repair finishes the
		// writes on a later one.
		if err := g.skip(ctx, c, now); err != nil {
			g.logger.Warn("skipping overlap loser failed",
				logging.F("key", c.Key().String()), logging.Err(err))
		}
	}
	return winner, nil
}

// repair finishes the skip writes for a loser stranded by a failed earlier
// tick. Only candidates behind another eligible candidate qualify: an
// in-progress entry for the earliest candidate belongs to an interrupted
// supervision, not a lost skip, and is left alone.
func (g *Gate) repair(ctx context.Context, c meeting.Candidate, now time.Time) {
	entry, err := g.ledger.Get(ctx, c.Key())
	if err != nil {
		return
	}

	switch {
	case entry.Status == ledger.StatusInProgress:
		err = g.skip(ctx, c, now)
	case entry.Outcome == nwerrors.OutcomeSkippedOverlap:
		if _, gerr := g.recorder.Get(ctx, c.Key()); !nwerrors.IsNotFound(gerr) {
			return
		}
		err = g.recordSkip(ctx, c, now)
	default:
		return
	}
	if err != nil {
		g.logger.Warn("repairing stranded overlap loser failed",
			logging.F("key", c.Key().String()), logging.Err(err))
	}
}

func (g *Gate) skip(ctx context.Context, c meeting.Candidate, now time.Time) error {
	if err := g.ledger.Finalize(ctx, c.Key(), nwerrors.OutcomeSkippedOverlap); err != nil {
		return err
	}
	return g.recordSkip(ctx, c, now)
}

func (g *Gate) recordSkip(ctx context.Context, c meeting.Candidate, now time.Time) error {
	if err := g.recorder.Record(ctx, results.SkippedRecord(c, now)); err != nil &&
		!nwerrors.Is(err, nwerrors.ErrAlreadyRecorded) {
		return err
	}
	if g.metrics != nil {
		g.metrics.CandidatesSkipped.WithLabelValues("overlap_conflict").Inc()
	}
	g.logger.Info("candidate skipped on overlap",
		logging.F("key", c.Key().String()),
		logging.F("summary", c.Summary))
	return nil
}
