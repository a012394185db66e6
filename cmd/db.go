package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/notewatch/pkg/db"
)

// DbCmd manages the notewatch database.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the notewatch database",
	Long: `Manage the PostgreSQL database backing the trigger ledger and the
result store.

Examples:
  notewatch db migrate
  notewatch db status
  notewatch db ping`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runDbStatus,
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database connectivity",
	RunE:  runDbPing,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbPingCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	result, err := db.RunMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for _, v := range result.Applied {
		fmt.Printf("applied  %s\n", v)
	}
	for _, v := range result.Skipped {
		fmt.Printf("skipped  %s\n", v)
	}
	if len(result.Applied) == 0 {
		fmt.Println("Schema is up to date.")
	}
	return nil
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	entries, err := db.MigrationStatus(ctx, pool)
	if err != nil {
		return fmt.Errorf("fetching migration status: %w", err)
	}

	for _, e := range entries {
		if e.AppliedAt != nil {
			fmt.Printf("applied  %-24s %s\n", e.Version, e.AppliedAt.Format(time.RFC3339))
		} else {
			fmt.Printf("pending  %s\n", e.Version)
		}
	}
	return nil
}

func runDbPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	status := db.Check(ctx, pool)
	if status.Error != nil {
		return fmt.Errorf("database unhealthy: %w", status.Error)
	}

	fmt.Printf("ok (latency %s, conns total=%d idle=%d acquired=%d)\n",
		status.Latency.Round(time.Millisecond),
		status.TotalConns, status.IdleConns, status.AcquiredConns)
	return nil
}
