package watch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/ledger"
	"github.com/otherjamesbrown/notewatch/pkg/lifecycle"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/observability"
	"github.com/otherjamesbrown/notewatch/pkg/results"
	"github.com/otherjamesbrown/notewatch/pkg/supervisor"
)

// Options wires the watcher's collaborators. Source, Ledger, Recorder and
// Client are required; the rest default.
type Options struct {
	Source   EventSource
	Ledger   ledger.Ledger
	Recorder results.Recorder
	Client   lifecycle.Client

	// Publisher, when set, hands terminal records to the downstream queue.
	Publisher *results.Publisher

	Supervisor supervisor.Config
	Harvest    supervisor.HarvestConfig

	// TickInterval is the idle poll cadence (default 60s).
	TickInterval time.Duration

	// Lookahead bounds how far ahead the source is asked to look (default 24h).
	Lookahead time.Duration

	Clock   supervisor.Clock
	Logger  logging.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Watcher is the single poll loop. One Watcher means at most one live
// supervision process-wide, because supervisions run synchronously inside the
// tick.
type Watcher struct {
	source    EventSource
	gate      *Gate
	ledger    ledger.Ledger
	recorder  results.Recorder
	client    lifecycle.Client
	publisher *results.Publisher
	harvester *supervisor.Harvester

	supCfg    supervisor.Config
	tick      time.Duration
	lookahead time.Duration

	clock   supervisor.Clock
	logger  logging.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewWatcher creates the poll loop from its collaborators.
func NewWatcher(opts Options) *Watcher {
	if opts.Clock == nil {
		opts.Clock = supervisor.NewClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 60 * time.Second
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 24 * time.Hour
	}
	if opts.Supervisor.PollInterval <= 0 {
		opts.Supervisor = supervisor.DefaultConfig()
	}
	if opts.Harvest.Interval <= 0 {
		opts.Harvest = supervisor.DefaultHarvestConfig()
	}

	logger := opts.Logger.With(logging.F("component", "watcher"))
	gate := NewGate(opts.Ledger, opts.Recorder,
		opts.Supervisor.JoinWindowBefore, opts.Supervisor.JoinWindowAfter, opts.Logger)
	if opts.Metrics != nil {
		gate = gate.WithMetrics(opts.Metrics)
	}

	return &Watcher{
		source:    opts.Source,
		gate:      gate,
		ledger:    opts.Ledger,
		recorder:  opts.Recorder,
		client:    opts.Client,
		publisher: opts.Publisher,
		harvester: supervisor.NewHarvester(opts.Client, opts.Clock, opts.Harvest, opts.Logger),
		supCfg:    opts.Supervisor,
		tick:      opts.TickInterval,
		lookahead: opts.Lookahead,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
	}
}

// Run polls until the context is cancelled. Supervisions triggered by a tick
// run to their terminal state on this goroutine; the stop signal interrupts
// them between poll cycles and their CANCELLED record is still persisted.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch loop started",
		logging.F("tick_interval", w.tick),
		logging.F("lookahead", w.lookahead))

	for {
		w.runTick(ctx)

		if err := w.clock.Sleep(ctx, w.tick); err != nil {
			w.logger.Info("watch loop stopped")
			return nil
		}
	}
}

// RunOnce executes a single poll tick, including any supervision it triggers.
func (w *Watcher) RunOnce(ctx context.Context) error {
	w.runTick(ctx)
	return ctx.Err()
}

func (w *Watcher) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.tracer != nil {
		var span trace.Span
		ctx, span = w.tracer.StartTickSpan(ctx)
		defer span.End()
	}

	now := w.clock.Now()
	if w.metrics != nil {
		w.metrics.TicksTotal.Inc()
	}

	candidates, err := w.source.Upcoming(ctx, now, w.lookahead)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PollErrorsTotal.Inc()
		}
		w.logger.Warn("event source poll failed", logging.Err(err))
		return
	}
	if w.metrics != nil {
		w.metrics.CandidatesSeen.Add(float64(len(candidates)))
	}

	winner, err := w.gate.Select(ctx, now, candidates)
	if err != nil {
		// A non-nil winner is already claimed in the ledger; dropping it here
		// would strand the claim and the meeting with it.
		w.logger.Error("gate selection failed", logging.Err(err))
	}
	if winner == nil {
		return
	}

	sup := supervisor.New(*winner, w.client, w.supCfg, w.clock, w.logger)
	if w.metrics != nil || w.tracer != nil {
		sup = sup.WithObservability(w.metrics, w.tracer)
	}
	rec := sup.Run(ctx)

	w.harvester.Harvest(ctx, rec)
	w.finish(ctx, rec)
}

// Terminal-record persistence retries briefly inside finish's detached
// context before a failure is given up on.
const (
	finishAttempts   = 3
	finishRetryDelay = 2 * time.Second
)

// finish persists the terminal record, finalizes the ledger, and publishes.
// It runs on a detached context so a cancellation that ended the supervision
// cannot also lose its record.
func (w *Watcher) finish(ctx context.Context, rec *results.Record) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	key := rec.Key()

	err := w.retry(fctx, func() error {
		if err := w.recorder.Record(fctx, rec); err != nil &&
			!nwerrors.Is(err, nwerrors.ErrAlreadyRecorded) {
			return err
		}
		return nil
	})
	if err != nil {
		w.logger.Error("recording result failed",
			logging.F("key", key.String()), logging.Err(err))
	}

	err = w.retry(fctx, func() error {
		return w.ledger.Finalize(fctx, key, rec.Outcome)
	})
	switch {
	case err == nil:
	case nwerrors.IsOutcomeMismatch(err):
		w.logger.Error("ledger outcome mismatch",
			logging.F("key", key.String()),
			logging.F("outcome", string(rec.Outcome)),
			logging.Err(err))
	default:
		w.logger.Error("finalizing ledger failed",
			logging.F("key", key.String()), logging.Err(err))
	}

	if w.publisher != nil {
		if err := w.publisher.Publish(fctx, rec); err != nil {
			w.logger.Warn("publishing result failed",
				logging.F("key", key.String()), logging.Err(err))
		}
	}
}

// retry runs op up to finishAttempts times with a short pause between tries.
// Outcome conflicts are permanent and returned immediately.
func (w *Watcher) retry(ctx context.Context, op func() error) error {
	var err error
	for i := 0; i < finishAttempts; i++ {
		if i > 0 {
			if w.clock.Sleep(ctx, finishRetryDelay) != nil {
				return err
			}
		}
		if err = op(); err == nil ||
			nwerrors.IsOutcomeMismatch(err) || nwerrors.Is(err, nwerrors.ErrNotClaimed) {
			return err
		}
	}
	return err
}
