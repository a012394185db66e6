// Package meeting defines the calendar-derived meeting types shared by the
// join gate, the supervisor, and the result stores.
package meeting

import (
	"fmt"
	"time"
)

// Key is the natural key of a meeting occurrence. A recurring event produces
// one Key per occurrence because the start time participates in the key.
type Key struct {
	EventID string    `json:"event_id" yaml:"event_id"`
	StartAt time.Time `json:"start_at" yaml:"start_at"`
}

// String renders the key in the canonical "<event_id>@<RFC3339 start>" form
// used in logs and storage.
func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.EventID, k.StartAt.UTC().Format(time.RFC3339))
}

// Candidate is one meeting occurrence observed from the event source.
// Immutable once observed; all times are UTC.
type Candidate struct {
	EventID       string    `json:"event_id"`
	Summary       string    `json:"summary,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	ConferenceURL string    `json:"conference_url"`
}

// Key returns the candidate's natural key.
func (c Candidate) Key() Key {
	return Key{EventID: c.EventID, StartAt: c.StartAt.UTC()}
}

// ScheduledDuration returns the scheduled length of the meeting.
func (c Candidate) ScheduledDuration() time.Duration {
	return c.EndAt.Sub(c.StartAt)
}

// Validate checks the fields the gate and supervisor depend on.
func (c Candidate) Validate() error {
	if c.EventID == "" {
		return fmt.Errorf("candidate has empty event id")
	}
	if c.StartAt.IsZero() || c.EndAt.IsZero() {
		return fmt.Errorf("candidate %s has zero start or end time", c.EventID)
	}
	if !c.EndAt.After(c.StartAt) {
		return fmt.Errorf("candidate %s ends at or before its start", c.EventID)
	}
	if c.ConferenceURL == "" {
		return fmt.Errorf("candidate %s has no conference URL", c.EventID)
	}
	return nil
}
