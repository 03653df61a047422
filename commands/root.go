package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-trial-monitor/internal/config"
	"github.com/penwyp/go-trial-monitor/internal/data/trialfile"
	"github.com/penwyp/go-trial-monitor/internal/pipeline"
	"github.com/penwyp/go-trial-monitor/internal/presentation/formatter"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

var (
	// Logging related
	debug   bool
	logFile string

	// Experiment configuration
	experimentYaml  string
	subjectYaml     string
	readerOverrides []string
	searchPath      []string

	// Run configuration
	trialFilePath string
	simulateDelay bool

	rootCmd = &cobra.Command{
		Use:   "go-trial-monitor [flags]",
		Short: "Neuroscience trial extraction tool",
		Long: `go-trial-monitor reads experiment data from multiple sources, aligns their
clocks, delimits the timeline into trials, and writes the trials to a JSON
Lines trial file.

An experiment YAML file declares the readers to run, how their results route
into named buffers, and how trials are delimited, aligned, and enhanced.

Examples:
  go-trial-monitor --experiment exp.yaml                          # Run with default trial file
  go-trial-monitor --experiment exp.yaml --subject subject.yaml   # Include subject metadata
  go-trial-monitor --experiment exp.yaml --trial-file out.jsonl   # Choose the output file
  go-trial-monitor --experiment exp.yaml --readers code_reader.csv_file=real.csv
  go-trial-monitor --experiment exp.yaml --search-path ~/data --simulate-delay`,
		RunE: runExperiment,
	}
)

const defaultLogFile = "~/.go-trial-monitor/logs/app.log"

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode (also logs to the console)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile,
		"Log file path")
	rootCmd.PersistentFlags().StringSliceVar(&searchPath, "search-path", nil,
		"Path prefixes to search for named files (repeatable)")

	rootCmd.Flags().StringVarP(&experimentYaml, "experiment", "e", "",
		"Experiment YAML file describing readers, buffers, and trials")
	rootCmd.Flags().StringVarP(&subjectYaml, "subject", "s", "",
		"Subject YAML file with metadata passed to enhancers")
	rootCmd.Flags().StringArrayVar(&readerOverrides, "readers", nil,
		"Reader arg overrides like reader_name.arg_name=value (repeatable)")
	rootCmd.Flags().StringVarP(&trialFilePath, "trial-file", "f", "trials.jsonl",
		"Trial file to write (.json or .jsonl)")
	rootCmd.Flags().BoolVar(&simulateDelay, "simulate-delay", false,
		"Let readers that opt in pace their data against the wall clock")

	rootCmd.MarkFlagRequired("experiment")
}

func runExperiment(cmd *cobra.Command, args []string) error {
	initLogging()

	finder := config.NewFileFinder(searchPath)
	experiment, err := config.LoadExperiment(experimentYaml, finder)
	if err != nil {
		return err
	}
	if err := experiment.ApplyReaderOverrides(readerOverrides); err != nil {
		return err
	}
	subject, err := config.LoadSubject(subjectYaml, finder)
	if err != nil {
		return err
	}

	p, err := pipeline.Build(experiment, subject, pipeline.Options{
		AllowSimulateDelay: simulateDelay,
		Finder:             finder,
	})
	if err != nil {
		return err
	}

	resolvedTrialFile, err := finder.Find(trialFilePath)
	if err != nil {
		return err
	}
	writer, err := trialfile.NewWriter(resolvedTrialFile)
	if err != nil {
		return err
	}

	startTime := time.Now()
	summary, err := p.Run(writer)
	if summary != nil {
		formatter.PrintRunSummary(summary)
		util.LogInfof("Run finished in %s with %d trials.",
			util.FormatDuration(time.Since(startTime)), summary.TrialsWritten)
	}
	return err
}

// initLogging sets up the global logger from the shared flags.
func initLogging() {
	logLevel := "info"
	if debug {
		logLevel = "debug"
	}
	resolvedLogFile := expandPath(logFile)
	ensureDir(filepath.Dir(resolvedLogFile))
	util.InitLogger(logLevel, resolvedLogFile, debug)
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
