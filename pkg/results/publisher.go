package results

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/notewatch/pkg/logging"
)

// Redis key layout for the downstream hand-off queue.
const (
	keyQueue   = "notewatch:results"      // pending records (list, FIFO)
	keyPayload = "notewatch:results:msg:" // payload per message id
)

// DefaultRetention bounds how long an unconsumed payload is kept.
const DefaultRetention = 7 * 24 * time.Hour

// queuedRecord wraps a Record for the hand-off queue.
type queuedRecord struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
	Record      *Record   `json:"record"`
}

// Publisher hands terminal records to downstream consumers (the extraction
// and delivery agents) over a Redis queue. Publication is best-effort on top
// of the durable Postgres record: a failed publish is logged, never fatal to
// the supervision result.
type Publisher struct {
	client    *redis.Client
	retention time.Duration
	logger    logging.Logger
}

// NewPublisher creates a result publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	return &Publisher{
		client:    client,
		retention: DefaultRetention,
		logger:    logger.With(logging.F("component", "result_publisher")),
	}
}

// Publish enqueues one terminal record.
func (p *Publisher) Publish(ctx context.Context, rec *Record) error {
	qr := queuedRecord{
		ID:          uuid.New().String(),
		PublishedAt: time.Now().UTC(),
		Record:      rec,
	}

	payload, err := json.Marshal(qr)
	if err != nil {
		return fmt.Errorf("results: marshaling queued record: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, keyPayload+qr.ID, payload, p.retention)
	pipe.RPush(ctx, keyQueue, qr.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("results: publishing %s: %w", rec.Key(), err)
	}

	p.logger.Debug("result published",
		logging.F("key", rec.Key().String()),
		logging.F("message_id", qr.ID))
	return nil
}

// Depth returns the number of unconsumed records in the queue.
func (p *Publisher) Depth(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, keyQueue).Result()
}
