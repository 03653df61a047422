package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-trial-monitor/internal/config"
	"github.com/penwyp/go-trial-monitor/internal/data/trialfile"
	"github.com/penwyp/go-trial-monitor/internal/presentation/formatter"
)

var (
	outputFormat string

	inspectCmd = &cobra.Command{
		Use:   "inspect <trial-file>",
		Short: "Summarize the trials in a trial file",
		Long: `inspect reads a JSON Lines trial file produced by a previous run and prints
a per-trial summary: timing, alignment, and how much data each trial carries.

Examples:
  go-trial-monitor inspect trials.jsonl                  # Per-trial table
  go-trial-monitor inspect trials.jsonl --output summary # Aggregate report
  go-trial-monitor inspect trials.jsonl --output json    # Machine-readable rows`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
)

func init() {
	inspectCmd.Flags().StringVarP(&outputFormat, "output", "o", "table",
		"Output format (table, summary, csv, json)")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	initLogging()

	f, ok := formatter.ForName(outputFormat)
	if !ok {
		return fmt.Errorf("unknown output format %q (use table, summary, csv, or json)", outputFormat)
	}

	finder := config.NewFileFinder(searchPath)
	path, err := finder.Find(args[0])
	if err != nil {
		return err
	}
	trials, err := trialfile.ReadAll(path)
	if err != nil {
		return err
	}

	return f.Format(formatter.RowsFromTrials(trials))
}
