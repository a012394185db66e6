// Package main provides the notewatch CLI entry point.
// notewatch joins scheduled online meetings with a hosted notetaker bot and
// supervises each capture from join to terminal outcome.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/notewatch/cmd"
	"github.com/otherjamesbrown/notewatch/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "notewatch",
	Short: "Meeting capture supervisor",
	Long: `notewatch watches a calendar for upcoming meetings, joins them with a
hosted notetaker bot, and supervises each capture attempt through join,
waiting-room admission, recording, disconnect recovery, and termination.

Every meeting occurrence is handled at most once: outcomes are recorded in
the result store and never overwritten, so downstream consumers can rely on
one terminal record per meeting.

COMMON WORKFLOWS:
  Store the API key:   notewatch auth login
  Prepare the schema:  notewatch db migrate
  Run the watcher:     notewatch watch
  Inspect outcomes:    notewatch results list  |  notewatch ledger list

DISCOVERY:
  notewatch <command> --help   Subcommands, flags, and examples`,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(c *cobra.Command, args []string) {
		fmt.Println("notewatch " + buildinfo.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.WatchCmd)
	rootCmd.AddCommand(cmd.ResultsCmd)
	rootCmd.AddCommand(cmd.LedgerCmd)
	rootCmd.AddCommand(cmd.AuthCmd)
	rootCmd.AddCommand(cmd.DbCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
