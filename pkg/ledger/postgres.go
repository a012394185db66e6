package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	nwerrors "github.com/otherjamesbrown/notewatch/pkg/errors"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// Postgres is the production Ledger backed by the trigger_ledger table.
// Single-writer by deployment contract; the insert-if-absent claim still uses
// ON CONFLICT so a crashed-and-restarted process cannot double-claim a key.
type Postgres struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgres creates a Postgres-backed ledger.
func NewPostgres(pool *pgxpool.Pool, logger logging.Logger) *Postgres {
	return &Postgres{
		pool:   pool,
		logger: logger.With(logging.F("component", "trigger_ledger")),
	}
}

// TryClaim inserts an in-progress entry unless the key is already present.
func (p *Postgres) TryClaim(ctx context.Context, key meeting.Key) (bool, error) {
	query := `
		INSERT INTO trigger_ledger (event_id, start_ts, status, claimed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (event_id, start_ts) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query, key.EventID, key.StartAt.UTC(), StatusInProgress)
	if err != nil {
		return false, fmt.Errorf("ledger: claiming %s: %w", key, err)
	}

	claimed := tag.RowsAffected() == 1
	if claimed {
		p.logger.Debug("key claimed", logging.F("key", key.String()))
	}
	return claimed, nil
}

// Finalize writes the terminal outcome for a claimed key.
func (p *Postgres) Finalize(ctx context.Context, key meeting.Key, outcome nwerrors.Outcome) error {
	if !outcome.Valid() {
		return fmt.Errorf("ledger: finalize %s with unknown outcome %q", key, outcome)
	}

	query := `
		UPDATE trigger_ledger
		SET status = $3, outcome = $4, finalized_at = COALESCE(finalized_at, NOW())
		WHERE event_id = $1 AND start_ts = $2
		  AND (status = $5 OR outcome = $4)
	`

	tag, err := p.pool.Exec(ctx, query,
		key.EventID, key.StartAt.UTC(), StatusFinalized, string(outcome), StatusInProgress)
	if err != nil {
		return fmt.Errorf("ledger: finalizing %s: %w", key, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row updated: either the key was never claimed, or it is finalized
	// with a different outcome. Distinguish for the caller.
	entry, err := p.Get(ctx, key)
	if err != nil {
		if nwerrors.IsNotFound(err) {
			return fmt.Errorf("ledger: finalize %s: %w", key, nwerrors.ErrNotClaimed)
		}
		return err
	}
	return fmt.Errorf("ledger: finalize %s with %s, already finalized as %s: %w",
		key, outcome, entry.Outcome, nwerrors.ErrOutcomeMismatch)
}

// Get returns the entry for a key.
func (p *Postgres) Get(ctx context.Context, key meeting.Key) (*Entry, error) {
	query := `
		SELECT event_id, start_ts, status, COALESCE(outcome, ''), claimed_at,
		       COALESCE(finalized_at, 'epoch'::timestamptz)
		FROM trigger_ledger
		WHERE event_id = $1 AND start_ts = $2
	`

	entry := &Entry{}
	var outcome string
	err := p.pool.QueryRow(ctx, query, key.EventID, key.StartAt.UTC()).Scan(
		&entry.Key.EventID,
		&entry.Key.StartAt,
		&entry.Status,
		&outcome,
		&entry.ClaimedAt,
		&entry.FinalizedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ledger: %s: %w", key, nwerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: reading %s: %w", key, err)
	}
	entry.Outcome = nwerrors.Outcome(outcome)
	return entry, nil
}

// List returns up to limit entries, newest claim first.
func (p *Postgres) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT event_id, start_ts, status, COALESCE(outcome, ''), claimed_at,
		       COALESCE(finalized_at, 'epoch'::timestamptz)
		FROM trigger_ledger
		ORDER BY claimed_at DESC
		LIMIT $1
	`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var outcome string
		if err := rows.Scan(
			&entry.Key.EventID,
			&entry.Key.StartAt,
			&entry.Status,
			&outcome,
			&entry.ClaimedAt,
			&entry.FinalizedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scanning entry: %w", err)
		}
		entry.Outcome = nwerrors.Outcome(outcome)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating entries: %w", err)
	}
	return entries, nil
}

var _ Ledger = (*Postgres)(nil)
