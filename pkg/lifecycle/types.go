package lifecycle

import "time"

// EventType classifies one entry in a capture session's history feed.
type EventType string

const (
	EventCreating     EventType = "creating"
	EventWaiting      EventType = "waiting"
	EventJoined       EventType = "joined"
	EventDisconnected EventType = "disconnected"
	EventRemoved      EventType = "removed"
	EventEnded        EventType = "ended"
)

// HistoryEvent is one observed lifecycle transition for a capture session.
// The feed is ordered newest first, matching the upstream API.
type HistoryEvent struct {
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// MediaState describes the processing state of a session's media artifacts.
type MediaState string

const (
	MediaProcessing MediaState = "processing"
	MediaAvailable  MediaState = "available"
	MediaError      MediaState = "error"
	MediaDeleted    MediaState = "deleted"
)

// Media is the best-known media status for one capture session. TranscriptURL
// is set once the provider has published a transcript artifact.
type Media struct {
	State         MediaState `json:"state"`
	TranscriptURL string     `json:"transcript_url,omitempty"`
	RecordingURL  string     `json:"recording_url,omitempty"`
}

// Available reports whether usable media exists for the session.
func (m *Media) Available() bool {
	return m != nil && m.State == MediaAvailable && (m.TranscriptURL != "" || m.RecordingURL != "")
}

// LatestEvent returns the newest event in a history feed, or the zero value
// when the feed is empty.
func LatestEvent(events []HistoryEvent) (HistoryEvent, bool) {
	if len(events) == 0 {
		return HistoryEvent{}, false
	}
	return events[0], true
}
