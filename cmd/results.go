package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/notewatch/pkg/db"
	"github.com/otherjamesbrown/notewatch/pkg/results"
)

// Results command flags.
var resultsLimit int

// ResultsCmd inspects recorded meeting outcomes.
var ResultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect recorded meeting outcomes",
	Long: `Inspect the terminal records written by the watch loop.

Each record is written exactly once per meeting occurrence and carries the
outcome, the capture attempts with their media references, and the state
transition journal.

Examples:
  notewatch results list
  notewatch results list --limit 50 --output-json
  notewatch results show ev_123 2026-08-24T15:00:00Z`,
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent meeting outcomes",
	RunE:  runResultsList,
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <event-id> <start-time>",
	Short: "Show one meeting's record",
	Args:  cobra.ExactArgs(2),
	RunE:  runResultsShow,
}

func init() {
	resultsListCmd.Flags().IntVar(&resultsLimit, "limit", 20, "Maximum records to list")
	resultsListCmd.Flags().BoolVar(&outputJSON, "output-json", false, "Emit JSON instead of text")
	resultsShowCmd.Flags().BoolVar(&outputJSON, "output-json", false, "Emit JSON instead of text")

	ResultsCmd.AddCommand(resultsListCmd)
	ResultsCmd.AddCommand(resultsShowCmd)
}

func runResultsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "results")

	ctx := cmd.Context()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	recorder := results.NewPostgres(pool, logger)
	records, err := recorder.List(ctx, resultsLimit)
	if err != nil {
		return fmt.Errorf("listing results: %w", err)
	}

	if outputJSON {
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No results recorded.")
		return nil
	}

	fmt.Printf("%-28s %-22s %-24s %8s  %s\n", "EVENT", "START", "OUTCOME", "ATTEMPTS", "SUMMARY")
	for _, r := range records {
		fmt.Printf("%-28s %-22s %-24s %8d  %s\n",
			truncate(r.EventID, 28),
			r.StartAt.Format(time.RFC3339),
			r.Outcome,
			len(r.Attempts),
			truncate(r.Summary, 40))
	}
	return nil
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "results")

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

	recorder := results.NewPostgres(pool, logger)
	rec, err := recorder.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching record %s: %w", key, err)
	}

	if outputJSON {
		return printJSON(rec)
	}

	fmt.Printf("Meeting:   %s\n", rec.Key())
	if rec.Summary != "" {
		fmt.Printf("Summary:   %s\n", rec.Summary)
	}
	fmt.Printf("Outcome:   %s\n", rec.Outcome)
	if rec.Message != "" {
		fmt.Printf("Message:   %s\n", rec.Message)
	}
	fmt.Printf("Window:    %s -> %s\n",
		rec.StartAt.Format(time.RFC3339), rec.EndAt.Format(time.RFC3339))
	fmt.Printf("Ran:       %s -> %s\n",
		rec.StartedAt.Format(time.RFC3339), rec.EndedAt.Format(time.RFC3339))

	fmt.Printf("Attempts:  %d\n", len(rec.Attempts))
	for _, a := range rec.Attempts {
		fmt.Printf("  [%d] session=%s created=%s media=%s\n",
			a.Index, a.SessionID, a.CreatedAt.Format(time.RFC3339), orDash(a.MediaState))
		if a.TranscriptURL != "" {
			fmt.Printf("      transcript: %s\n", a.TranscriptURL)
		}
		if a.RecordingURL != "" {
			fmt.Printf("      recording:  %s\n", a.RecordingURL)
		}
	}

	if len(rec.Transitions) > 0 {
		fmt.Println("Transitions:")
		for _, t := range rec.Transitions {
			fmt.Printf("  %s  %-14s attempt=%d\n", t.At.Format(time.RFC3339), t.State, t.Attempt)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
