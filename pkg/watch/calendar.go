package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// CalendarConfig holds the calendar API settings.
type CalendarConfig struct {
	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey authenticates requests (Bearer token).
	APIKey string

	// GrantID identifies the connected account.
	GrantID string

	// CalendarID selects the calendar to watch ("primary" when empty).
	CalendarID string

	// Timeout bounds each HTTP request (default: 30s).
	Timeout time.Duration

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// CalendarSource reads upcoming meetings from a Nylas-style events API. Only
// events carrying a conference URL become candidates; everything else on the
// calendar is invisible to the gate.
type CalendarSource struct {
	baseURL    string
	apiKey     string
	grantID    string
	calendarID string
	hc         *http.Client
	logger     logging.Logger
}

// NewCalendarSource creates a calendar-backed event source.
func NewCalendarSource(cfg CalendarConfig, logger logging.Logger) (*CalendarSource, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("calendar: missing API key")
	}
	if cfg.GrantID == "" {
		return nil, fmt.Errorf("calendar: missing grant id")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.us.nylas.com"
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CalendarSource{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		grantID:    cfg.GrantID,
		calendarID: calendarID,
		hc:         hc,
		logger:     logger.With(logging.F("component", "calendar_source")),
	}, nil
}

type eventsResponse struct {
	Data []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		When  struct {
			StartTime int64 `json:"start_time"`
			EndTime   int64 `json:"end_time"`
		} `json:"when"`
		Conferencing struct {
			Details struct {
				URL string `json:"url"`
			} `json:"details"`
		} `json:"conferencing"`
	} `json:"data"`
}

// Upcoming fetches events starting inside the lookahead window. The query
// start reaches slightly into the past so a meeting whose start already
// passed, but whose join window is still open, stays visible.
func (s *CalendarSource) Upcoming(ctx context.Context, now time.Time, lookahead time.Duration) ([]meeting.Candidate, error) {
	from := now.Add(-time.Hour)
	to := now.Add(lookahead)

	q := url.Values{}
	q.Set("calendar_id", s.calendarID)
	q.Set("start", strconv.FormatInt(from.Unix(), 10))
	q.Set("end", strconv.FormatInt(to.Unix(), 10))
	q.Set("expand_recurring", "true")

	reqURL := fmt.Sprintf("%s/v3/grants/%s/events?%s", s.baseURL, s.grantID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: events call: %w: %v", nwerrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("calendar: events call failed (%d): %w", resp.StatusCode, nwerrors.ErrTransient)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("calendar: events call failed (%d)", resp.StatusCode)
	}

	var out eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("calendar: decoding events response: %w", err)
	}

	candidates := make([]meeting.Candidate, 0, len(out.Data))
	for _, ev := range out.Data {
		if ev.Conferencing.Details.URL == "" {
			continue
		}
		candidates = append(candidates, meeting.Candidate{
			EventID:       ev.ID,
			Summary:       ev.Title,
			StartAt:       time.Unix(ev.When.StartTime, 0).UTC(),
			EndAt:         time.Unix(ev.When.EndTime, 0).UTC(),
			ConferenceURL: ev.Conferencing.Details.URL,
		})
	}

	s.logger.Debug("calendar window fetched",
		logging.F("events", len(out.Data)),
		logging.F("candidates", len(candidates)))
	return candidates, nil
}

var _ EventSource = (*CalendarSource)(nil)
