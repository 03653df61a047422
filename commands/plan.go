package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-trial-monitor/internal/config"
	"github.com/penwyp/go-trial-monitor/internal/pipeline"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resolved wiring for an experiment",
	Long: `plan loads an experiment YAML file, resolves reader classes, routes,
buffers, sync settings, and enhancers, and prints the resulting wiring without
reading any data. Useful to check an experiment design before a session.

Examples:
  go-trial-monitor plan --experiment exp.yaml
  go-trial-monitor plan --experiment exp.yaml --readers code_reader.csv_file=real.csv`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&experimentYaml, "experiment", "e", "",
		"Experiment YAML file describing readers, buffers, and trials")
	planCmd.Flags().StringArrayVar(&readerOverrides, "readers", nil,
		"Reader arg overrides like reader_name.arg_name=value (repeatable)")
	planCmd.MarkFlagRequired("experiment")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	initLogging()

	finder := config.NewFileFinder(searchPath)
	experiment, err := config.LoadExperiment(experimentYaml, finder)
	if err != nil {
		return err
	}
	if err := experiment.ApplyReaderOverrides(readerOverrides); err != nil {
		return err
	}

	// Building the pipeline resolves every class name and buffer reference,
	// so a bad design fails here the same way it would fail a run.
	p, err := pipeline.Build(experiment, nil, pipeline.Options{Finder: finder})
	if err != nil {
		return err
	}

	width := util.GetTerminalWidth()
	fmt.Println(strings.Repeat("=", width))
	fmt.Printf("Experiment: %s\n", experimentYaml)
	fmt.Println(strings.Repeat("=", width))

	readerNames := make([]string, 0, len(p.Routers))
	for name := range p.Routers {
		readerNames = append(readerNames, name)
	}
	sort.Strings(readerNames)

	fmt.Printf("\nReaders (%d):\n", len(readerNames))
	for _, name := range readerNames {
		router := p.Routers[name]
		fmt.Printf("  %s (%s)\n", name, experiment.Readers[name].Class)
		for _, route := range router.Routes() {
			arrow := fmt.Sprintf("    %s -> %s", route.ReaderResultName, route.BufferName)
			if n := len(route.Transformers); n > 0 {
				arrow += fmt.Sprintf(" (%d transformers)", n)
			}
			fmt.Println(arrow)
		}
		if sync := router.SyncConfig(); sync != nil {
			syncInfo := fmt.Sprintf("sync on %s[%d] == %v", sync.ReaderResultName, sync.EventValueIndex, sync.EventValue)
			if sync.IsReference {
				syncInfo = "reference clock, " + syncInfo
			}
			if sync.ReaderName != name {
				syncInfo += fmt.Sprintf(", recorded as %s", sync.ReaderName)
			}
			fmt.Printf("    [%s]\n", syncInfo)
		}
	}

	bufferNames := make([]string, 0, len(p.NamedBuffers))
	for name := range p.NamedBuffers {
		bufferNames = append(bufferNames, name)
	}
	sort.Strings(bufferNames)
	fmt.Printf("\nBuffers (%d): %s\n", len(bufferNames), strings.Join(bufferNames, ", "))

	fmt.Printf("\nTrials: start %s == %v, wrt %s == %v\n",
		experiment.Trials.StartBuffer, experiment.Trials.StartValue,
		experiment.Trials.WrtBuffer, experiment.Trials.WrtValue)
	if len(experiment.Trials.Enhancers) > 0 {
		fmt.Printf("Enhancers (%d):\n", len(experiment.Trials.Enhancers))
		for _, enhancerConfig := range experiment.Trials.Enhancers {
			line := "  " + enhancerConfig.Class
			if enhancerConfig.When != "" {
				line += fmt.Sprintf(" when %s", enhancerConfig.When)
			}
			fmt.Println(line)
		}
	}
	fmt.Println(strings.Repeat("=", width))

	return nil
}
