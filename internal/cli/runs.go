package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var runsRaw bool

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List or inspect extraction runs",
	Long: `List recent extraction runs or inspect a specific run by ID.

Examples:
  reelfacts runs                 # List the 100 most recent runs
  reelfacts runs 3f2a...         # Show the step timeline of one run
  reelfacts runs 3f2a... --raw   # Print the stored run document`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().BoolVar(&runsRaw, "raw", false, "print the stored run document as JSON")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx, false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := a.Ledger.ListRecentRuns(ctx)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		renderRunList(out, runs)
		return nil
	}

	run, err := a.Ledger.LoadRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if runsRaw {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	renderRun(out, defaultTheme, run)
	return nil
}
