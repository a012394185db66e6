package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// Postgres is the production Recorder backed by the meeting_results table.
// Inserts use ON CONFLICT DO NOTHING so an existing record is never mutated.
type Postgres struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgres creates a Postgres-backed recorder.
func NewPostgres(pool *pgxpool.Pool, logger logging.Logger) *Postgres {
	return &Postgres{
		pool:   pool,
		logger: logger.With(logging.F("component", "result_recorder")),
	}
}

// Record appends a record, refusing overwrites.
func (p *Postgres) Record(ctx context.Context, rec *Record) error {
	if !rec.Outcome.Valid() {
		return fmt.Errorf("results: record %s has unknown outcome %q", rec.Key(), rec.Outcome)
	}

	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("results: marshaling attempts: %w", err)
	}
	transitionsJSON, err := json.Marshal(rec.Transitions)
	if err != nil {
		return fmt.Errorf("results: marshaling transitions: %w", err)
	}

	query := `
		INSERT INTO meeting_results (
			event_id, start_ts, end_ts, summary, conference_url,
			outcome, message, attempts, transitions,
			started_at, ended_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, NOW()
		)
		ON CONFLICT (event_id, start_ts) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query,
		rec.EventID,
		rec.StartAt.UTC(),
		rec.EndAt.UTC(),
		rec.Summary,
		rec.ConferenceURL,
		string(rec.Outcome),
		rec.Message,
		attemptsJSON,
		transitionsJSON,
		rec.StartedAt.UTC(),
		rec.EndedAt.UTC(),
	)
	if err != nil {
		p.logger.Error("failed to record result",
			logging.Err(err),
			logging.F("key", rec.Key().String()),
			logging.F("outcome", string(rec.Outcome)))
		return fmt.Errorf("results: recording %s: %w", rec.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("results: record %s: %w", rec.Key(), nwerrors.ErrAlreadyRecorded)
	}

	p.logger.Info("result recorded",
		logging.F("key", rec.Key().String()),
		logging.F("outcome", string(rec.Outcome)),
		logging.F("attempts", len(rec.Attempts)))
	return nil
}

// Get returns the record for a key.
func (p *Postgres) Get(ctx context.Context, key meeting.Key) (*Record, error) {
	query := `
		SELECT event_id, start_ts, end_ts, summary, conference_url,
		       outcome, message, attempts, transitions, started_at, ended_at
		FROM meeting_results
		WHERE event_id = $1 AND start_ts = $2
	`

	rec, err := scanRecord(p.pool.QueryRow(ctx, query, key.EventID, key.StartAt.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("results: %s: %w", key, nwerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("results: reading %s: %w", key, err)
	}
	return rec, nil
}

// List returns up to limit records, newest end first.
func (p *Postgres) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT event_id, start_ts, end_ts, summary, conference_url,
		       outcome, message, attempts, transitions, started_at, ended_at
		FROM meeting_results
		ORDER BY ended_at DESC
		LIMIT $1
	`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("results: listing records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("results: scanning record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: iterating records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var outcome string
	var attemptsJSON, transitionsJSON []byte
	err := row.Scan(
		&rec.EventID,
		&rec.StartAt,
		&rec.EndAt,
		&rec.Summary,
		&rec.ConferenceURL,
		&outcome,
		&rec.Message,
		&attemptsJSON,
		&transitionsJSON,
		&rec.StartedAt,
		&rec.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Outcome = nwerrors.Outcome(outcome)
	if err := json.Unmarshal(attemptsJSON, &rec.Attempts); err != nil {
		rec.Attempts = []Attempt{}
	}
	if err := json.Unmarshal(transitionsJSON, &rec.Transitions); err != nil {
		rec.Transitions = nil
	}
	return rec, nil
}

var _ Recorder = (*Postgres)(nil)
