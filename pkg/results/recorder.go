package results

import (
	"context"
	"fmt"
	"sort"
	"sync"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// Recorder persists terminal records. Record appends exactly once per meeting
// key and must never overwrite an existing record; a duplicate write fails
// with ErrAlreadyRecorded.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
	Get(ctx context.Context, key meeting.Key) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
}

// Memory is an in-memory Recorder for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

// Record appends a record, refusing overwrites.
func (m *Memory) Record(_ context.Context, rec *Record) error {
	if !rec.Outcome.Valid() {
		return fmt.Errorf("results: record %s has unknown outcome %q", rec.Key(), rec.Outcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := rec.Key().String()
	if _, ok := m.records[k]; ok {
		return fmt.Errorf("results: record %s: %w", rec.Key(), nwerrors.ErrAlreadyRecorded)
	}
	cp := *rec
	m.records[k] = &cp
	return nil
}

// Get returns the record for a key, or ErrNotFound.
func (m *Memory) Get(_ context.Context, key meeting.Key) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key.String()]
	if !ok {
		return nil, fmt.Errorf("results: %s: %w", key, nwerrors.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// List returns up to limit records, newest end first.
func (m *Memory) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Recorder = (*Memory)(nil)
