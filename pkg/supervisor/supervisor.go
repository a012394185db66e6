// Package supervisor implements the meeting-join reliability state machine.
// A Supervision owns exactly one meeting-capture attempt sequence at a time
// and drives it through creation, admission, recording, disconnection/rejoin,
// and termination, using the polled lifecycle history feed as ground truth.
//
// The machine never waits unboundedly: every phase is a deadline comparison
// against the Clock, and every wait goes through Clock.Sleep so an external
// stop signal is observed between any two poll cycles.
package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/lifecycle"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
	"github.com/otherjamesbrown/notewatch/pkg/observability"
	"github.com/otherjamesbrown/notewatch/pkg/results"
)

// State is a supervision phase.
type State string

const (
	StateCreating     State = "CREATING"
	StateJoining      State = "JOINING"
	StateInMeeting    State = "IN_MEETING"
	StateDisconnected State = "DISCONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateEnding       State = "ENDING"
	StateTerminated   State = "TERMINATED"
)

// Config holds the timing policy. All defaults come from the join reliability
// contract; tests shrink them through the fake clock rather than overriding.
type Config struct {
	// JoinWindowBefore is how early before the scheduled start a join may be
	// attempted.
	JoinWindowBefore time.Duration `yaml:"join_window_before"`

	// JoinWindowAfter is how long after the scheduled start the join may keep
	// being attempted before JOIN_TIMEOUT.
	JoinWindowAfter time.Duration `yaml:"join_window_after"`

	// CreateRetryMin/Max bound the jittered delay between create calls while
	// creating or joining.
	CreateRetryMin time.Duration `yaml:"create_retry_min"`
	CreateRetryMax time.Duration `yaml:"create_retry_max"`

	// WaitingRoomBudget is the maximum time in the host's waiting room.
	WaitingRoomBudget time.Duration `yaml:"waiting_room_budget"`

	// RejoinInterval is the cadence of rejoin attempts after a disconnect.
	RejoinInterval time.Duration `yaml:"rejoin_interval"`

	// ReconnectBudget is the total time allowed to recover from a disconnect.
	ReconnectBudget time.Duration `yaml:"reconnect_budget"`

	// EndGrace is added to the scheduled end time to form the "meeting should
	// be over" end-detection signal.
	EndGrace time.Duration `yaml:"end_grace"`

	// MaxOverrun is added to the scheduled duration, measured from the actual
	// join, to form the hard runtime cap.
	MaxOverrun time.Duration `yaml:"max_overrun"`

	// PollInterval is the cadence of history/media polls.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the contractual timing policy.
func DefaultConfig() Config {
	return Config{
		JoinWindowBefore:  2 * time.Minute,
		JoinWindowAfter:   15 * time.Minute,
		CreateRetryMin:    30 * time.Second,
		CreateRetryMax:    60 * time.Second,
		WaitingRoomBudget: 5 * time.Minute,
		RejoinInterval:    30 * time.Second,
		ReconnectBudget:   5 * time.Minute,
		EndGrace:          15 * time.Minute,
		MaxOverrun:        30 * time.Minute,
		PollInterval:      15 * time.Second,
	}
}

// Validate checks the timing policy for internal consistency.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.CreateRetryMin <= 0 || c.CreateRetryMax < c.CreateRetryMin {
		return fmt.Errorf("create retry bounds are inverted")
	}
	if c.JoinWindowAfter <= 0 || c.WaitingRoomBudget <= 0 || c.ReconnectBudget <= 0 {
		return fmt.Errorf("phase budgets must be positive")
	}
	return nil
}

// Supervision drives one meeting candidate from selection to a terminal
// outcome. Exactly one Supervision may be alive process-wide; the watch loop
// enforces that by running it synchronously.
type Supervision struct {
	candidate meeting.Candidate
	cfg       Config
	client    lifecycle.Client
	clock     Clock
	logger    logging.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	state       State
	attempts    []results.Attempt
	transitions []results.Transition
	startedAt   time.Time

	// end-detection evidence; see endQuorum
	historyEnded bool
}

// New creates a Supervision for a candidate. Metrics and tracer are optional.
func New(c meeting.Candidate, client lifecycle.Client, cfg Config, clock Clock, logger logging.Logger) *Supervision {
	if clock == nil {
		clock = NewClock()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Supervision{
		candidate: c,
		cfg:       cfg,
		client:    client,
		clock:     clock,
		logger: logger.With(
			logging.F("component", "supervisor"),
			logging.F("event_id", c.EventID),
			logging.F("start_at", c.StartAt.UTC())),
	}
}

// WithObservability attaches metrics and tracing.
func (s *Supervision) WithObservability(m *observability.Metrics, t *observability.Tracer) *Supervision {
	s.metrics = m
	s.tracer = t
	return s
}

// State returns the current phase.
func (s *Supervision) State() State {
	return s.state
}

// Run drives the candidate to a terminal outcome. It always returns a record,
// including on cancellation, so no attempt or media data is silently lost.
func (s *Supervision) Run(ctx context.Context) *results.Record {
	s.startedAt = s.clock.Now()

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartSupervisionSpan(ctx,
			s.candidate.EventID, s.candidate.StartAt.UTC().Format(time.RFC3339))
	}

	outcome, message := s.run(ctx)

	if span != nil {
		span.SetAttributes(attribute.String(observability.AttrOutcome, string(outcome)))
		span.End()
	}

	s.transitionTo(StateTerminated)
	endedAt := s.clock.Now()

	if s.metrics != nil {
		s.metrics.SupervisionsTotal.WithLabelValues(string(outcome)).Inc()
		s.metrics.SupervisionSeconds.Observe(endedAt.Sub(s.startedAt).Seconds())
		s.metrics.AttemptsPerMeeting.Observe(float64(len(s.attempts)))
	}

	s.logger.Info("supervision terminated",
		logging.F("outcome", string(outcome)),
		logging.F("attempts", len(s.attempts)),
		logging.F("message", message))

	return &results.Record{
		EventID:       s.candidate.EventID,
		StartAt:       s.candidate.StartAt.UTC(),
		EndAt:         s.candidate.EndAt.UTC(),
		Summary:       s.candidate.Summary,
		ConferenceURL: s.candidate.ConferenceURL,
		Outcome:       outcome,
		Message:       message,
		Attempts:      s.attempts,
		Transitions:   s.transitions,
		StartedAt:     s.startedAt,
		EndedAt:       endedAt,
	}
}

func (s *Supervision) run(ctx context.Context) (nwerrors.Outcome, string) {
	start := s.candidate.StartAt.UTC()
	windowOpen := start.Add(-s.cfg.JoinWindowBefore)
	joinDeadline := start.Add(s.cfg.JoinWindowAfter)
	graceDeadline := s.candidate.EndAt.UTC().Add(s.cfg.EndGrace)

	// Joining too early gets the bot rejected by most conference rooms, so
	// hold until the window opens.
	if wait := windowOpen.Sub(s.clock.Now()); wait > 0 {
		s.logger.Debug("waiting for join window", logging.F("wait", wait))
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return nwerrors.OutcomeCancelled, "stop signal before join window opened"
		}
	}

	s.transitionTo(StateCreating)

	var (
		joined         bool
		maxDeadline    time.Time
		waitingSince   time.Time
		disconnectedAt time.Time
		lastCreateAt   time.Time
		lastRejoinAt   time.Time
		createDelay    = s.createRetryDelay()
	)

	for {
		if ctx.Err() != nil {
			return nwerrors.OutcomeCancelled, "stop signal observed between poll cycles"
		}
		now := s.clock.Now()

		// Deadline comparisons run before any network call so transient poll
		// failures cannot postpone a timing failure past its budget.
		if joined && now.After(maxDeadline) {
			return nwerrors.OutcomeMaxDurationExceeded,
				"meeting exceeded scheduled duration plus overrun allowance"
		}
		if !waitingSince.IsZero() && now.Sub(waitingSince) > s.cfg.WaitingRoomBudget {
			return nwerrors.OutcomeWaitingRoomTimeout,
				fmt.Sprintf("no admission after %s in the waiting room", s.cfg.WaitingRoomBudget)
		}
		if !disconnectedAt.IsZero() && now.Sub(disconnectedAt) > s.cfg.ReconnectBudget {
			return nwerrors.OutcomeDisconnectedTimeout,
				fmt.Sprintf("reconnection budget of %s exhausted", s.cfg.ReconnectBudget)
		}
		if !joined && now.After(joinDeadline) {
			return nwerrors.OutcomeJoinTimeout, "join window closed without a successful join"
		}

		// Create the first attempt, and keep re-creating on the jittered
		// cadence while the session is stuck before admission. The waiting
		// room does not re-create; its own budget governs there.
		if len(s.attempts) == 0 {
			if s.createAttempt(ctx) {
				lastCreateAt = s.clock.Now()
				createDelay = s.createRetryDelay()
				s.transitionTo(StateJoining)
			} else {
				if err := s.clock.Sleep(ctx, createDelay); err != nil {
					return nwerrors.OutcomeCancelled, "stop signal during create retry"
				}
				createDelay = s.createRetryDelay()
			}
			continue
		}

		current := &s.attempts[len(s.attempts)-1]

		events, err := s.client.History(ctx, current.SessionID)
		if err != nil {
			if s.metrics != nil {
				s.metrics.PollErrorsTotal.Inc()
			}
			if !nwerrors.IsTransient(err) {
				s.logger.Warn("history poll failed", logging.Err(err))
			}
			if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
				return nwerrors.OutcomeCancelled, "stop signal during status poll"
			}
			continue
		}

		if latest, ok := lifecycle.LatestEvent(events); ok {
			switch latest.Type {
			case lifecycle.EventRemoved:
				// The remote side signaled intent to exclude the bot.
				return nwerrors.OutcomeBotRemoved, "host removed the bot"

			case lifecycle.EventEnded:
				s.historyEnded = true

			case lifecycle.EventJoined:
				waitingSince = time.Time{}
				if !joined {
					joined = true
					maxDeadline = now.Add(s.candidate.ScheduledDuration() + s.cfg.MaxOverrun)
					s.transitionTo(StateInMeeting)
				} else if !disconnectedAt.IsZero() {
					disconnectedAt = time.Time{}
					s.transitionTo(StateInMeeting)
				}

			case lifecycle.EventWaiting:
				if !joined && waitingSince.IsZero() {
					waitingSince = now
					s.logger.Info("held in waiting room")
				}

			case lifecycle.EventDisconnected:
				if joined && disconnectedAt.IsZero() {
					disconnectedAt = now
					lastRejoinAt = now
					s.transitionTo(StateDisconnected)
					s.transitionTo(StateReconnecting)
					s.logger.Warn("session disconnected, starting rejoin cadence")
				}
			}
		}

		// Best-known media references are persisted as soon as they appear so
		// a later crash or failure outcome still salvages the fragment.
		s.refreshMedia(ctx, current)

		// Rejoin by new identity: each rejoin creates a brand-new session and
		// appends an Attempt; the old session is never resumed.
		if !disconnectedAt.IsZero() && now.Sub(lastRejoinAt) >= s.cfg.RejoinInterval {
			lastRejoinAt = now
			s.createAttempt(ctx)
		}

		// Re-create cadence while still pre-admission and not in the waiting
		// room (meeting not ready, entry failed, create landed dead).
		if !joined && disconnectedAt.IsZero() && waitingSince.IsZero() &&
			now.Sub(lastCreateAt) >= createDelay {
			if s.createAttempt(ctx) {
				lastCreateAt = s.clock.Now()
				createDelay = s.createRetryDelay()
			}
		}

		// End detection: quorum of two out of the three observable signals.
		// Signals about "bot alone" and "no audio" are not exposed by the
		// lifecycle API and are never evaluated.
		graceExpired := !now.Before(graceDeadline)
		mediaReady := current.MediaState == string(lifecycle.MediaAvailable) &&
			(current.TranscriptURL != "" || current.RecordingURL != "")
		if s.endQuorum(graceExpired, mediaReady) {
			s.transitionTo(StateEnding)
			return nwerrors.OutcomeSuccess, s.endReason(graceExpired, mediaReady)
		}

		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return nwerrors.OutcomeCancelled, "stop signal during status poll"
		}
	}
}

// createAttempt issues one create call and appends an Attempt on success.
func (s *Supervision) createAttempt(ctx context.Context) bool {
	sessionID, err := s.client.Create(ctx, s.candidate.ConferenceURL)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CreateCallsTotal.WithLabelValues("error").Inc()
		}
		s.logger.Warn("create call failed", logging.Err(err))
		return false
	}
	if s.metrics != nil {
		s.metrics.CreateCallsTotal.WithLabelValues("ok").Inc()
	}

	attempt := results.Attempt{
		Index:     len(s.attempts),
		SessionID: sessionID,
		CreatedAt: s.clock.Now(),
	}
	s.attempts = append(s.attempts, attempt)
	s.logger.Info("capture attempt created",
		logging.F("attempt", attempt.Index),
		logging.F("session_id", sessionID))
	return true
}

// refreshMedia updates the attempt's best-known media references.
func (s *Supervision) refreshMedia(ctx context.Context, attempt *results.Attempt) {
	media, err := s.client.Media(ctx, attempt.SessionID)
	if err != nil || media == nil {
		return
	}
	attempt.MediaState = string(media.State)
	if media.TranscriptURL != "" {
		attempt.TranscriptURL = media.TranscriptURL
	}
	if media.RecordingURL != "" {
		attempt.RecordingURL = media.RecordingURL
	}
}

// endQuorum applies the 2-of-3 end-detection rule.
func (s *Supervision) endQuorum(graceExpired, mediaReady bool) bool {
	signals := 0
	if s.historyEnded {
		signals++
	}
	if graceExpired {
		signals++
	}
	if mediaReady {
		signals++
	}
	return signals >= 2
}

func (s *Supervision) endReason(graceExpired, mediaReady bool) string {
	reason := "meeting ended:"
	if s.historyEnded {
		reason += " history_ended"
	}
	if graceExpired {
		reason += " grace_expired"
	}
	if mediaReady {
		reason += " media_available"
	}
	return reason
}

// transitionTo appends a state transition to the supervision journal.
func (s *Supervision) transitionTo(next State) {
	s.state = next
	s.transitions = append(s.transitions, results.Transition{
		State:   string(next),
		At:      s.clock.Now(),
		Attempt: len(s.attempts) - 1,
	})
	s.logger.Debug("state transition", logging.F("state", string(next)))
}

// createRetryDelay returns a jittered delay inside the create retry bounds.
func (s *Supervision) createRetryDelay() time.Duration {
	spread := s.cfg.CreateRetryMax - s.cfg.CreateRetryMin
	if spread <= 0 {
		return s.cfg.CreateRetryMin
	}
	return s.cfg.CreateRetryMin + time.Duration(rand.Int63n(int64(spread)))
}
