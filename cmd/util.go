// Package cmd provides CLI commands for the notewatch tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/notewatch/config"
	"github.com/otherjamesbrown/notewatch/pkg/db"
	"github.com/otherjamesbrown/notewatch/pkg/logging"
	"github.com/otherjamesbrown/notewatch/pkg/meeting"
)

// outputJSON is the shared --output json flag.
var outputJSON bool

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseKey builds a meeting key from an event id and an RFC3339 start time.
func parseKey(eventID, startAt string) (meeting.Key, error) {
	t, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return meeting.Key{}, fmt.Errorf("parsing start time %q (want RFC3339): %w", startAt, err)
	}
	return meeting.Key{EventID: eventID, StartAt: t.UTC()}, nil
}

// loadConfig loads the daemon configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the CLI logger from the config's debug setting.
func newLogger(cfg *config.Config, component string) logging.Logger {
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:     level,
		Component: component,
	})
}

// openPool connects to the configured database.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("no database configured; set database in %s or NOTEWATCH_DB_* env vars", mustConfigPath())
	}
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func mustConfigPath() string {
	p, err := config.ConfigPath()
	if err != nil {
		return "~/.notewatch/config.yaml"
	}
	return p
}
