package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one versioned schema change. Migrations are compiled in rather
// than read from disk so the binary is self-contained.
type Migration struct {
	Version string
	SQL     string
}

// Migrations is the ordered schema history.
var Migrations = []Migration{
	{
		Version: "001_trigger_ledger",
		SQL: `
			CREATE TABLE IF NOT EXISTS trigger_ledger (
				event_id     TEXT NOT NULL,
				start_ts     TIMESTAMPTZ NOT NULL,
				status       TEXT NOT NULL DEFAULT 'in_progress',
				outcome      TEXT,
				claimed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				finalized_at TIMESTAMPTZ,
				PRIMARY KEY (event_id, start_ts)
			);
			CREATE INDEX IF NOT EXISTS idx_trigger_ledger_status
				ON trigger_ledger (status);
		`,
	},
	{
		Version: "002_meeting_results",
		SQL: `
			CREATE TABLE IF NOT EXISTS meeting_results (
				event_id       TEXT NOT NULL,
				start_ts       TIMESTAMPTZ NOT NULL,
				end_ts         TIMESTAMPTZ NOT NULL,
				summary        TEXT NOT NULL DEFAULT '',
				conference_url TEXT NOT NULL DEFAULT '',
				outcome        TEXT NOT NULL,
				message        TEXT NOT NULL DEFAULT '',
				attempts       JSONB NOT NULL DEFAULT '[]',
				transitions    JSONB NOT NULL DEFAULT '[]',
				started_at     TIMESTAMPTZ NOT NULL,
				ended_at       TIMESTAMPTZ NOT NULL,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (event_id, start_ts)
			);
			CREATE INDEX IF NOT EXISTS idx_meeting_results_outcome
				ON meeting_results (outcome);
			CREATE INDEX IF NOT EXISTS idx_meeting_results_ended_at
				ON meeting_results (ended_at DESC);
		`,
	},
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	Applied []string
	Skipped []string
}

// MigrationStatusEntry is one migration in a status report.
type MigrationStatusEntry struct {
	Version   string
	AppliedAt *time.Time // nil when pending
}

// RunMigrations applies all pending migrations in order, stopping at the
// first failure. Each migration runs in its own transaction and is recorded
// in schema_migrations so re-runs skip it.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) (*MigrationResult, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	result := &MigrationResult{}
	for _, m := range Migrations {
		if _, ok := applied[m.Version]; ok {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}
		if err := applyMigration(ctx, pool, m); err != nil {
			return result, fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
	}
	return result, nil
}

// MigrationStatus reports each known migration and when it was applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) ([]MigrationStatusEntry, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}

	entries := make([]MigrationStatusEntry, 0, len(Migrations))
	for _, m := range Migrations {
		entry := MigrationStatusEntry{Version: m.Version}
		if at, ok := applied[m.Version]; ok {
			t := at
			entry.AppliedAt = &t
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	applied := make(map[string]time.Time)

	rows, err := pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit(ctx)
}
