// Package ledger implements the trigger ledger: the record of which meeting
// occurrences have already been handled. A key is claimed at most once, which
// is what guarantees exactly-once triggering across poll ticks.
package ledger

import (
	"context"
	"time"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// Status is the state of a ledger entry.
type Status string

const (
	// StatusInProgress means the key is claimed and a supervision is (or was)
	// running for it.
	StatusInProgress Status = "in_progress"
	// StatusFinalized means a terminal outcome has been written.
	StatusFinalized Status = "finalized"
)

// Entry is one trigger ledger row.
type Entry struct {
	Key         meeting.Key
	Status      Status
	Outcome     nwerrors.Outcome
	ClaimedAt   time.Time
	FinalizedAt time.Time
}

// Ledger records which (event id, start time) pairs have been handled.
//
// TryClaim writes an in-progress entry and reports whether the caller won the
// claim; false means the key was already present. Finalize writes the terminal
// outcome for a claimed key: duplicate finalizes with the same outcome are
// idempotent, a different outcome fails with ErrOutcomeMismatch, and
// finalizing an unclaimed key fails with ErrNotClaimed.
type Ledger interface {
	TryClaim(ctx context.Context, key meeting.Key) (bool, error)
	Finalize(ctx context.Context, key meeting.Key, outcome nwerrors.Outcome) error
	Get(ctx context.Context, key meeting.Key) (*Entry, error)
	List(ctx context.Context, limit int) ([]*Entry, error)
}
