package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/notewatch/pkg/db"
	"github.com/otherjamesbrown/notewatch/pkg/ledger"
)

// Ledger command flags.
var ledgerLimit int

// LedgerCmd inspects the trigger ledger.
var LedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the trigger ledger",
	Long: `Inspect which meeting occurrences have been claimed and finalized.

The ledger is what guarantees a meeting occurrence is supervised at most
once: a claim is written before supervision starts, and the terminal outcome
is recorded when it ends.

Examples:
  notewatch ledger list
  notewatch ledger show ev_123 2026-08-24T15:00:00Z`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ledger entries",
	RunE:  runLedgerList,
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <event-id> <start-time>",
	Short: "Show one ledger entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runLedgerShow,
}

func init() {
	ledgerListCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "Maximum entries to list")
	ledgerListCmd.Flags().BoolVar(&outputJSON, "output-json", false, "Emit JSON instead of text")
	ledgerShowCmd.Flags().BoolVar(&outputJSON, "output-json", false, "Emit JSON instead of text")

	LedgerCmd.AddCommand(ledgerListCmd)
	LedgerCmd.AddCommand(ledgerShowCmd)
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "ledger")

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	lg := ledger.NewPostgres(pool, logger)
	entries, err := lg.List(ctx, ledgerLimit)
	if err != nil {
		return fmt.Errorf("listing ledger entries: %w", err)
	}

	if outputJSON {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("Ledger is empty.")
		return nil
	}

	fmt.Printf("%-28s %-22s %-12s %-24s %s\n", "EVENT", "START", "STATUS", "OUTCOME", "CLAIMED")
	for _, e := range entries {
		outcome := "-"
		if e.Outcome != "" {
			outcome = string(e.Outcome)
		}
		fmt.Printf("%-28s %-22s %-12s %-24s %s\n",
			truncate(e.Key.EventID, 28),
			e.Key.StartAt.Format(time.RFC3339),
			e.Status,
			outcome,
			e.ClaimedAt.Format(time.RFC3339))
	}
	return nil
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "ledger")

	key, err := parseKey(args[0], args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	lg := ledger.NewPostgres(pool, logger)
	entry, err := lg.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching ledger entry %s: %w", key, err)
	}

	if outputJSON {
		return printJSON(entry)
	}

	fmt.Printf("Meeting:    %s\n", entry.Key)
	fmt.Printf("Status:     %s\n", entry.Status)
	if entry.Outcome != "" {
		fmt.Printf("Outcome:    %s\n", entry.Outcome)
	}
	fmt.Printf("Claimed:    %s\n", entry.ClaimedAt.Format(time.RFC3339))
	if !entry.FinalizedAt.IsZero() {
		fmt.Printf("Finalized:  %s\n", entry.FinalizedAt.Format(time.RFC3339))
	}
	return nil
}
