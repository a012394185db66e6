// Package watch runs the poll loop: observe upcoming meetings, gate them
// through the trigger ledger, and hand at most one candidate at a time to the
// supervisor.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// EventSource produces the meeting candidates visible on each poll tick.
type EventSource interface {
	// Upcoming returns candidates whose scheduled start falls within the
	// lookahead window from now. Order is not significant; the gate sorts.
	Upcoming(ctx context.Context, now time.Time, lookahead time.Duration) ([]meeting.Candidate, error)
}

// StaticSource serves a fixed candidate set. It backs unit tests and the
// --dry-run mode, where candidates come from a file instead of a calendar.
type StaticSource struct {
	mu         sync.Mutex
	candidates []meeting.Candidate
}

// NewStaticSource creates a source over a fixed candidate set.
func NewStaticSource(candidates ...meeting.Candidate) *StaticSource {
	return &StaticSource{candidates: candidates}
}

// Upcoming returns the candidates starting within the lookahead window.
func (s *StaticSource) Upcoming(_ context.Context, now time.Time, lookahead time.Duration) ([]meeting.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := now.Add(lookahead)
	out := make([]meeting.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if c.StartAt.After(horizon) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Set replaces the candidate set.
func (s *StaticSource) Set(candidates ...meeting.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = candidates
}

var _ EventSource = (*StaticSource)(nil)
