package supervisor

import (
	"context"
	"time"

	"github.com/otherjamesbrown/notewatch/pkg/lifecycle"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/results"
)

// HarvestConfig bounds the post-termination media sweep.
type HarvestConfig struct {
	// Budget is the total wall time spent waiting for media to finish
	// processing across all attempts.
	Budget time.Duration `yaml:"budget"`

	// Interval is the re-check cadence for attempts still processing.
	Interval time.Duration `yaml:"interval"`
}

// DefaultHarvestConfig returns the default sweep policy.
func DefaultHarvestConfig() HarvestConfig {
	return HarvestConfig{
		Budget:   10 * time.Minute,
		Interval: 30 * time.Second,
	}
}

// Harvester sweeps a terminal record's attempts for media references the
// in-meeting polls did not see. Recordings and transcripts often finish
// processing minutes after the session ends, so the sweep re-checks on a
// cadence until every attempt settles or the budget runs out.
type Harvester struct {
	client lifecycle.Client
	clock  Clock
	cfg    HarvestConfig
	logger logging.Logger
}

// NewHarvester creates a media harvester.
func NewHarvester(client lifecycle.Client, clock Clock, cfg HarvestConfig, logger logging.Logger) *Harvester {
	if clock == nil {
		clock = NewClock()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Harvester{
		client: client,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(logging.F("component", "harvester")),
	}
}

// Harvest updates the record's attempts in place with the latest media state.
// It returns early once no attempt is still processing, and is safe to call
// on records with zero attempts.
func (h *Harvester) Harvest(ctx context.Context, rec *results.Record) {
	if len(rec.Attempts) == 0 {
		return
	}
	deadline := h.clock.Now().Add(h.cfg.Budget)

	for {
		pending := 0
		for i := range rec.Attempts {
			attempt := &rec.Attempts[i]
			if settled(attempt.MediaState) {
				continue
			}

			media, err := h.client.Media(ctx, attempt.SessionID)
			if err != nil {
				h.logger.Warn("media check failed",
					logging.F("session_id", attempt.SessionID),
					logging.Err(err))
				pending++
				continue
			}
			if media == nil {
				// 410: the session produced no media and never will.
				attempt.MediaState = string(lifecycle.MediaDeleted)
				continue
			}

			attempt.MediaState = string(media.State)
			if media.TranscriptURL != "" {
				attempt.TranscriptURL = media.TranscriptURL
			}
			if media.RecordingURL != "" {
				attempt.RecordingURL = media.RecordingURL
			}
			if !settled(attempt.MediaState) {
				pending++
			}
		}

		if pending == 0 {
			return
		}
		if !h.clock.Now().Add(h.cfg.Interval).Before(deadline) {
			h.logger.Warn("media harvest budget exhausted",
				logging.F("key", rec.Key().String()),
				logging.F("pending", pending))
			return
		}
		if err := h.clock.Sleep(ctx, h.cfg.Interval); err != nil {
			return
		}
	}
}

// settled reports whether a media state can no longer change.
func settled(state string) bool {
	switch lifecycle.MediaState(state) {
	case lifecycle.MediaAvailable, lifecycle.MediaError, lifecycle.MediaDeleted:
		return true
	}
	return false
}
