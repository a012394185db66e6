// Package results defines the terminal record of a supervised meeting and the
// append-only stores and publishers that carry it to downstream consumers.
package results

import (
	"time"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// Attempt is one capture-session creation. A supervision appends a new
// Attempt on every create and rejoin; attempts are never replaced, so media
// references stay unambiguous per external session.
type Attempt struct {
	// Index is the position in the supervision's attempt sequence (0, 1, ...).
	Index int `json:"index"`

	// SessionID is the externally-issued capture session identifier.
	SessionID string `json:"session_id"`

	// CreatedAt is when the create call succeeded.
	CreatedAt time.Time `json:"created_at"`

	// MediaState is the last observed media state for this session, if any.
	MediaState string `json:"media_state,omitempty"`

	// TranscriptURL is the best-known transcript reference for this session.
	TranscriptURL string `json:"transcript_url,omitempty"`

	// RecordingURL is the best-known recording reference for this session.
	RecordingURL string `json:"recording_url,omitempty"`
}

// Transition is one state change in a supervision's internal log.
type Transition struct {
	State   string    `json:"state"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt"`
}

// Record is the final, immutable summary of one supervision. Written exactly
// once per meeting key; failure outcomes still carry whatever attempt and
// media data existed, so partial transcripts are never reported as total loss.
type Record struct {
	EventID       string           `json:"event_id"`
	StartAt       time.Time        `json:"start_at"`
	EndAt         time.Time        `json:"end_at"`
	Summary       string           `json:"summary,omitempty"`
	ConferenceURL string           `json:"conference_url,omitempty"`
	Outcome       nwerrors.Outcome `json:"outcome"`
	Message       string           `json:"message,omitempty"`
	Attempts      []Attempt        `json:"attempts"`
	Transitions   []Transition     `json:"transitions,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       time.Time        `json:"ended_at"`
}

// Key returns the meeting natural key the record is stored under.
func (r *Record) Key() meeting.Key {
	return meeting.Key{EventID: r.EventID, StartAt: r.StartAt.UTC()}
}

// FinalAttempt returns the last attempt, or nil when no attempt was created
// (skips and pre-create failures).
func (r *Record) FinalAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// SkippedRecord builds the minimal record written for a candidate that lost
// the overlap tie-break. No attempt is ever created for these.
func SkippedRecord(c meeting.Candidate, now time.Time) *Record {
	return &Record{
		EventID:       c.EventID,
		StartAt:       c.StartAt.UTC(),
		EndAt:         c.EndAt.UTC(),
		Summary:       c.Summary,
		ConferenceURL: c.ConferenceURL,
		Outcome:       nwerrors.OutcomeSkippedOverlap,
		Message:       "lost earliest-start selection to an overlapping meeting",
		Attempts:      []Attempt{},
		StartedAt:     now,
		EndedAt:       now,
	}
}
