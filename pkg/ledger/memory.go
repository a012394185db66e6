package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// Memory is an in-memory Ledger for tests and dry runs. Single-writer, like
// the production store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates an in-memory ledger using the given time source.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	m.now = now
	return m
}

// TryClaim writes an in-progress entry unless the key is already present.
func (m *Memory) TryClaim(_ context.Context, key meeting.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key.String()]; ok {
		return false, nil
	}
	m.entries[key.String()] = &Entry{
		Key:       key,
		Status:    StatusInProgress,
		ClaimedAt: m.now(),
	}
	return true, nil
}

// Finalize writes the terminal outcome for a claimed key.
func (m *Memory) Finalize(_ context.Context, key meeting.Key, outcome nwerrors.Outcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("ledger: finalize %s with unknown outcome %q", key, outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key.String()]
	if !ok {
		return fmt.Errorf("ledger: finalize %s: %w", key, nwerrors.ErrNotClaimed)
	}
	if entry.Status == StatusFinalized {
		if entry.Outcome == outcome {
			return nil
		}
		return fmt.Errorf("ledger: finalize %s with %s, already finalized as %s: %w",
			key, outcome, entry.Outcome, nwerrors.ErrOutcomeMismatch)
	}

	entry.Status = StatusFinalized
	entry.Outcome = outcome
	entry.FinalizedAt = m.now()
	return nil
}

// Get returns the entry for a key, or ErrNotFound.
func (m *Memory) Get(_ context.Context, key meeting.Key) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key.String()]
	if !ok {
		return nil, fmt.Errorf("ledger: %s: %w", key, nwerrors.ErrNotFound)
	}
	cp := *entry
	return &cp, nil
}

// List returns up to limit entries, newest claim first.
func (m *Memory) List(_ context.Context, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClaimedAt.After(out[j].ClaimedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Ledger = (*Memory)(nil)
