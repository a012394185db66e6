// Package lifecycle is the client for the hosted notetaker bot API. It creates
// capture sessions for a conference URL and exposes the polled history and
// media feeds the supervisor uses as ground truth.
//
// The client never retries beyond a single route fallback; transient failures
// are wrapped with the domain ErrTransient sentinel so the supervisor can fold
// them into its own retry cadence.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
)

// DefaultBaseURL is the default API endpoint.
const DefaultBaseURL = "https://api.us.nylas.com"

// Client is the lifecycle API consumed by the supervisor.
type Client interface {
	// Create starts a new capture session for the conference URL and returns
	// the externally-issued session id.
	Create(ctx context.Context, conferenceURL string) (string, error)

	// History returns the session's lifecycle events, newest first.
	History(ctx context.Context, sessionID string) ([]HistoryEvent, error)

	// Media returns the session's media status, or nil when the provider has
	// no media for the session (not yet produced, or purged).
	Media(ctx context.Context, sessionID string) (*Media, error)
}

// Config holds HTTP client settings.
type Config struct {
	// BaseURL is the API endpoint (default: DefaultBaseURL).
	BaseURL string

	// APIKey authenticates requests (Bearer token).
	APIKey string

	// GrantID scopes sessions to a grant when set. Sessions created without a
	// grant are reachable only via the standalone routes.
	GrantID string

	// BotName is the display name the bot joins with.
	BotName string

	// Timeout bounds each HTTP request (default: 30s).
	Timeout time.Duration

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// HTTPClient implements Client against the hosted notetaker REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	grantID string
	botName string
	hc      *http.Client
	logger  logging.Logger
}

// NewHTTPClient creates a lifecycle client.
func NewHTTPClient(cfg Config, logger logging.Logger) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("lifecycle: missing API key")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
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
	return &HTTPClient{
		baseURL: base,
		apiKey:  cfg.APIKey,
		grantID: cfg.GrantID,
		botName: cfg.BotName,
		hc:      hc,
		logger:  logger.With(logging.F("component", "lifecycle_client")),
	}, nil
}

type createRequest struct {
	MeetingLink string `json:"meeting_link"`
	Name        string `json:"name,omitempty"`
}

type createResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Create starts a new capture session.
func (c *HTTPClient) Create(ctx context.Context, conferenceURL string) (string, error) {
	body, err := json.Marshal(createRequest{MeetingLink: conferenceURL, Name: c.botName})
	if err != nil {
		return "", fmt.Errorf("lifecycle: marshaling create request: %w", err)
	}

	url := c.baseURL + "/v3/notetakers"
	if c.grantID != "" {
		url = fmt.Sprintf("%s/v3/grants/%s/notetakers", c.baseURL, c.grantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("lifecycle: building create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("lifecycle: create call: %w: %v", nwerrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.statusError("create", resp.StatusCode)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("lifecycle: decoding create response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("lifecycle: create response carried no session id")
	}

	c.logger.Debug("session created", logging.F("session_id", out.Data.ID))
	return out.Data.ID, nil
}

type historyResponse struct {
	Data struct {
		Events []struct {
			EventType string `json:"event_type"`
			CreatedAt int64  `json:"created_at"`
		} `json:"events"`
	} `json:"data"`
}

// History fetches the session's lifecycle events, newest first. A grant-scoped
// 404 falls back once to the standalone route, since sessions created without
// a grant are not visible on the grant routes.
func (c *HTTPClient) History(ctx context.Context, sessionID string) ([]HistoryEvent, error) {
	resp, err := c.getWithFallback(ctx, sessionID, "history")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.statusError("history", resp.StatusCode)
	}

	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("lifecycle: decoding history response: %w", err)
	}

	events := make([]HistoryEvent, 0, len(out.Data.Events))
	for _, ev := range out.Data.Events {
		events = append(events, HistoryEvent{
			Type:      EventType(ev.EventType),
			Timestamp: time.Unix(ev.CreatedAt, 0).UTC(),
		})
	}
	return events, nil
}

type mediaResponse struct {
	Data struct {
		State      string `json:"state"`
		Transcript struct {
			URL string `json:"url"`
		} `json:"transcript"`
		Recording struct {
			URL string `json:"url"`
		} `json:"recording"`
	} `json:"data"`
}

// Media fetches the session's media status. A 410 means the provider will not
// produce media (or has purged it); that is "no media", not an error.
func (c *HTTPClient) Media(ctx context.Context, sessionID string) (*Media, error) {
	resp, err := c.getWithFallback(ctx, sessionID, "media")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, c.statusError("media", resp.StatusCode)
	}

	var out mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("lifecycle: decoding media response: %w", err)
	}

	return &Media{
		State:         MediaState(out.Data.State),
		TranscriptURL: out.Data.Transcript.URL,
		RecordingURL:  out.Data.Recording.URL,
	}, nil
}

func (c *HTTPClient) getWithFallback(ctx context.Context, sessionID, suffix string) (*http.Response, error) {
	standalone := fmt.Sprintf("%s/v3/notetakers/%s/%s", c.baseURL, sessionID, suffix)

	url := standalone
	if c.grantID != "" {
		url = fmt.Sprintf("%s/v3/grants/%s/notetakers/%s/%s", c.baseURL, c.grantID, sessionID, suffix)
	}

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	// Sessions created via the standalone endpoint 404 on the grant routes.
	if resp.StatusCode == http.StatusNotFound && url != standalone {
		resp.Body.Close()
		return c.get(ctx, standalone)
	}
	return resp, nil
}

func (c *HTTPClient) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: call: %w: %v", nwerrors.ErrTransient, err)
	}
	return resp, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *HTTPClient) statusError(op string, status int) error {
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("lifecycle: %s failed (%d): %w", op, status, nwerrors.ErrTransient)
	}
	return fmt.Errorf("lifecycle: %s failed (%d)", op, status)
}

var _ Client = (*HTTPClient)(nil)
