package watch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/ledger"
	"github.com/otherjamesbrown/notewatch/pkg/lifecycle"
	"github.com/otherjamesbrown/notewatch/pkg/results"
	"github.com/otherjamesbrown/notewatch/pkg/supervisor"
)

// scriptedClient answers lifecycle calls as a function of the fake clock, so a
// whole tick (gate, supervision, harvest) plays out as one timeline.
type scriptedClient struct {
	clock   *supervisor.FakeClock
	created int
	events  func(now time.Time) []lifecycle.HistoryEvent
	media   func(now time.Time) *lifecycle.Media
}

func (c *scriptedClient) Create(ctx context.Context, conferenceURL string) (string, error) {
	id := fmt.Sprintf("ntk_%d", c.created)
	c.created++
	return id, nil
}

func (c *scriptedClient) History(ctx context.Context, sessionID string) ([]lifecycle.HistoryEvent, error) {
	if c.events == nil {
		return nil, nil
	}
	return c.events(c.clock.Now()), nil
}

func (c *scriptedClient) Media(ctx context.Context, sessionID string) (*lifecycle.Media, error) {
	if c.media == nil {
		return nil, nil
	}
	return c.media(c.clock.Now()), nil
}

// successScript joins immediately, ends 25 minutes after start, and publishes
// media one minute later.
func successScript(clock *supervisor.FakeClock, start time.Time) *scriptedClient {
	return &scriptedClient{
		clock: clock,
		events: func(now time.Time) []lifecycle.HistoryEvent {
			if now.Before(start.Add(25 * time.Minute)) {
				return []lifecycle.HistoryEvent{{Type: lifecycle.EventJoined, Timestamp: now}}
			}
			return []lifecycle.HistoryEvent{{Type: lifecycle.EventEnded, Timestamp: now}}
		},
		media: func(now time.Time) *lifecycle.Media {
			if now.Before(start.Add(26 * time.Minute)) {
				return &lifecycle.Media{State: lifecycle.MediaProcessing}
			}
			return &lifecycle.Media{
				State:         lifecycle.MediaAvailable,
				TranscriptURL: "https://media.example.com/t1",
			}
		},
	}
}

func testSupervisorConfig() supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.CreateRetryMin = 30 * time.Second
	cfg.CreateRetryMax = 30 * time.Second
	return cfg
}

func TestRunOnceSupervisesToSuccess(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := supervisor.NewFakeClock(start.Add(-2 * time.Minute))
	client := successScript(clock, start)

	lg := ledger.NewMemory()
	rec := results.NewMemory()
	c := candidate("ev_1", start)

	w := NewWatcher(Options{
		Source:     NewStaticSource(c),
		Ledger:     lg,
		Recorder:   rec,
		Client:     client,
		Supervisor: testSupervisorConfig(),
		Clock:      clock,
	})

	require.NoError(t, w.RunOnce(context.Background()))

	got, err := rec.Get(context.Background(), c.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSuccess, got.Outcome)
	require.Len(t, got.Attempts, 1)
	assert.Equal(t, "https://media.example.com/t1", got.Attempts[0].TranscriptURL)

	entry, err := lg.Get(context.Background(), c.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, entry.Status)
	assert.Equal(t, nwerrors.OutcomeSuccess, entry.Outcome)
}

func TestRunOnceIsIdempotentPerOccurrence(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := supervisor.NewFakeClock(start.Add(-2 * time.Minute))
	client := successScript(clock, start)

	lg := ledger.NewMemory()
	rec := results.NewMemory()
	c := candidate("ev_1", start)

	w := NewWatcher(Options{
		Source:     NewStaticSource(c),
		Ledger:     lg,
		Recorder:   rec,
		Client:     client,
		Supervisor: testSupervisorConfig(),
		Clock:      clock,
	})

	require.NoError(t, w.RunOnce(context.Background()))
	createsAfterFirst := client.created

	// Next tick re-presents the same occurrence inside its join window; the
	// ledger claim makes it a no-op.
	clock.Set(start)
	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, createsAfterFirst, client.created, "no new capture sessions")
	records, err := rec.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRunOnceSkipsOverlapLoser(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := supervisor.NewFakeClock(start.Add(6 * time.Minute))
	client := successScript(clock, start)

	lg := ledger.NewMemory()
	rec := results.NewMemory()
	a := candidate("ev_a", start)
	b := candidate("ev_b", start.Add(5*time.Minute))

	w := NewWatcher(Options{
		Source:     NewStaticSource(a, b),
		Ledger:     lg,
		Recorder:   rec,
		Client:     client,
		Supervisor: testSupervisorConfig(),
		Clock:      clock,
	})

	require.NoError(t, w.RunOnce(context.Background()))

	winner, err := rec.Get(context.Background(), a.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSuccess, winner.Outcome)

	loser, err := rec.Get(context.Background(), b.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, loser.Outcome)
}

func TestRunOncePersistsCancelledRecord(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := supervisor.NewFakeClock(start.Add(-2 * time.Minute))
	clock.OnAdvance = func(now time.Time) {
		if !now.Before(start.Add(5 * time.Minute)) {
			cancel()
		}
	}
	client := &scriptedClient{
		clock: clock,
		events: func(now time.Time) []lifecycle.HistoryEvent {
			return []lifecycle.HistoryEvent{{Type: lifecycle.EventJoined, Timestamp: now}}
		},
	}

	lg := ledger.NewMemory()
	rec := results.NewMemory()
	c := candidate("ev_1", start)

	w := NewWatcher(Options{
		Source:     NewStaticSource(c),
		Ledger:     lg,
		Recorder:   rec,
		Client:     client,
		Supervisor: testSupervisorConfig(),
		Clock:      clock,
	})

	err := w.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// The stop signal ended the supervision, but its record and the ledger
	// finalization still land through the detached persistence context.
	got, getErr := rec.Get(context.Background(), c.Key())
	require.NoError(t, getErr)
	assert.Equal(t, nwerrors.OutcomeCancelled, got.Outcome)

	entry, getErr := lg.Get(context.Background(), c.Key())
	require.NoError(t, getErr)
	assert.Equal(t, nwerrors.OutcomeCancelled, entry.Outcome)
}

func TestRunStopsOnCancel(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := supervisor.NewFakeClock(start)
	clock.OnAdvance = func(now time.Time) {
		if !now.Before(start.Add(10 * time.Minute)) {
			cancel()
		}
	}

	w := NewWatcher(Options{
		Source:   NewStaticSource(), // nothing to supervise
		Ledger:   ledger.NewMemory(),
		Recorder: results.NewMemory(),
		Client:   &scriptedClient{clock: clock},
		Clock:    clock,
	})

	assert.NoError(t, w.Run(ctx))
}

func TestStaticSourceHonorsLookahead(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	near := candidate("ev_near", now.Add(time.Hour))
	far := candidate("ev_far", now.Add(48*time.Hour))

	src := NewStaticSource(near, far)
	got, err := src.Upcoming(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ev_near", got[0].EventID)
}

func TestCalendarSourceUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)

	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"calendar_id":      r.URL.Query().Get("calendar_id"),
			"expand_recurring": r.URL.Query().Get("expand_recurring"),
		}
		fmt.Fprintf(w, `{"data":[
			{"id":"ev_1","title":"Design review","when":{"start_time":%d,"end_time":%d},
			 "conferencing":{"details":{"url":"https://meet.example.com/abc"}}},
			{"id":"ev_2","title":"Focus block","when":{"start_time":%d,"end_time":%d}}
		]}`, start.Unix(), start.Add(30*time.Minute).Unix(),
			start.Unix(), start.Add(time.Hour).Unix())
	}))
	defer srv.Close()

	src, err := NewCalendarSource(CalendarConfig{
		BaseURL: srv.URL,
		APIKey:  "nyk_test",
		GrantID: "grant_1",
	}, nil)
	require.NoError(t, err)

	got, err := src.Upcoming(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "/v3/grants/grant_1/events", gotPath)
	assert.Equal(t, "primary", gotQuery["calendar_id"])
	assert.Equal(t, "true", gotQuery["expand_recurring"])

	// Events without a conference URL never become candidates.
	require.Len(t, got, 1)
	assert.Equal(t, "ev_1", got[0].EventID)
	assert.Equal(t, "Design review", got[0].Summary)
	assert.Equal(t, start, got[0].StartAt)
	assert.Equal(t, "https://meet.example.com/abc", got[0].ConferenceURL)
}

func TestCalendarSourceServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := NewCalendarSource(CalendarConfig{
		BaseURL: srv.URL,
		APIKey:  "nyk_test",
		GrantID: "grant_1",
	}, nil)
	require.NoError(t, err)

	_, err = src.Upcoming(context.Background(), time.Now().UTC(), time.Hour)
	require.Error(t, err)
	assert.True(t, nwerrors.IsTransient(err))
}

func TestRunOnceSurvivesSkipRecordFailure(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := supervisor.NewFakeClock(start.Add(6 * time.Minute))
	client := successScript(clock, start)

	lg := ledger.NewMemory()
	rec := &flakyRecorder{Recorder: results.NewMemory(), failures: 1}
	a := candidate("ev_a", start)
	b := candidate("ev_b", start.Add(5*time.Minute))

	w := NewWatcher(Options{
		Source:     NewStaticSource(a, b),
		Ledger:     lg,
		Recorder:   rec,
		Client:     client,
		Supervisor: testSupervisorConfig(),
		Clock:      clock,
	})

	// The loser's skip record fails; the winner's supervision still runs to
	// its terminal state and is persisted.
	require.NoError(t, w.RunOnce(context.Background()))

	winner, err := rec.Get(context.Background(), a.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSuccess, winner.Outcome)

	entry, err := lg.Get(context.Background(), a.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, entry.Status)
	assert.Equal(t, nwerrors.OutcomeSuccess, entry.Outcome)

	// A healthy re-tick inside the loser's join window backfills its record.
	clock.Set(start.Add(6 * time.Minute))
	require.NoError(t, w.RunOnce(context.Background()))

	loser, err := rec.Get(context.Background(), b.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSkippedOverlap, loser.Outcome)
}

func TestFinishRetriesTransientStoreFailures(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := supervisor.NewFakeClock(start.Add(-2 * time.Minute))
	client := successScript(clock, start)

	lg := &flakyLedger{Ledger: ledger.NewMemory(), failures: 1}
	rec := &flakyRecorder{Recorder: results.NewMemory(), failures: 1}
	c := candidate("ev_1", start)

	w := NewWatcher(Options{
		Source:     NewStaticSource(c),
		Ledger:     lg,
		Recorder:   rec,
		Client:     client,
		Supervisor: testSupervisorConfig(),
		Clock:      clock,
	})

	require.NoError(t, w.RunOnce(context.Background()))

	// Both terminal writes failed once and landed on retry.
	got, err := rec.Get(context.Background(), c.Key())
	require.NoError(t, err)
	assert.Equal(t, nwerrors.OutcomeSuccess, got.Outcome)

	entry, err := lg.Get(context.Background(), c.Key())
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFinalized, entry.Status)
	assert.Equal(t, nwerrors.OutcomeSuccess, entry.Outcome)
}

var _ lifecycle.Client = (*scriptedClient)(nil)
