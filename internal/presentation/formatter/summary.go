package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/penwyp/go-trial-monitor/internal/pipeline"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

// SummaryFormatter formats and outputs an aggregate report over a set of
// trials.
type SummaryFormatter struct{}

// NewSummaryFormatter creates a new instance of SummaryFormatter.
func NewSummaryFormatter() *SummaryFormatter {
	return &SummaryFormatter{}
}

// Format formats and outputs the summary information of the given trials.
func (f *SummaryFormatter) Format(rows []TrialRow) error {
	width := util.GetTerminalWidth()
	fmt.Println(strings.Repeat("=", width))
	fmt.Println("Trial File Summary Report")
	fmt.Println(strings.Repeat("=", width))
	fmt.Println()

	if len(rows) == 0 {
		fmt.Println("No trials to summarize")
		fmt.Println()
		fmt.Println(strings.Repeat("=", width))
		return nil
	}

	first := rows[0]
	last := rows[len(rows)-1]
	if last.EndTime != nil {
		fmt.Printf("Time Range: %s to %s seconds\n", formatSeconds(first.StartTime), formatSeconds(*last.EndTime))
	} else {
		fmt.Printf("Time Range: %s seconds onward\n", formatSeconds(first.StartTime))
	}
	fmt.Println()

	var totalEvents, totalSamples, totalEnhancements, boundedCount int
	var totalDuration, minDuration, maxDuration float64
	for _, row := range rows {
		totalEvents += row.EventCount
		totalSamples += row.SampleCount
		totalEnhancements += row.EnhancementCount
		if duration, ok := row.Duration(); ok {
			if boundedCount == 0 || duration < minDuration {
				minDuration = duration
			}
			if duration > maxDuration {
				maxDuration = duration
			}
			totalDuration += duration
			boundedCount++
		}
	}

	fmt.Println("Trial Breakdown:")
	fmt.Printf("  Trials: %s\n", formatNumber(len(rows)))
	if boundedCount > 0 {
		fmt.Printf("  Mean Duration: %s s\n", formatSeconds(totalDuration/float64(boundedCount)))
		fmt.Printf("  Min Duration: %s s\n", formatSeconds(minDuration))
		fmt.Printf("  Max Duration: %s s\n", formatSeconds(maxDuration))
	}
	fmt.Println()

	fmt.Println("Data Breakdown:")
	fmt.Printf("  Events: %s\n", formatNumber(totalEvents))
	fmt.Printf("  Signal Samples: %s\n", formatNumber(totalSamples))
	fmt.Printf("  Enhancements: %s\n", formatNumber(totalEnhancements))

	fmt.Println()
	fmt.Println(strings.Repeat("=", width))

	return nil
}

// PrintRunSummary reports what a pipeline run produced and how each reader
// ended up.
func PrintRunSummary(summary *pipeline.RunSummary) {
	width := util.GetTerminalWidth()
	fmt.Println(strings.Repeat("-", width))
	fmt.Printf("Wrote %s trials to %s\n", formatNumber(summary.TrialsWritten), summary.TrialFilePath)

	readerNames := make([]string, 0, len(summary.Readers))
	for name := range summary.Readers {
		readerNames = append(readerNames, name)
	}
	sort.Strings(readerNames)
	for _, name := range readerNames {
		readerSummary := summary.Readers[name]
		line := fmt.Sprintf("  %s: %s, clock drift %s s", name, readerSummary.Status, formatSeconds(readerSummary.ClockDrift))
		if readerSummary.FaultReason != nil {
			line += fmt.Sprintf(" (%v)", readerSummary.FaultReason)
		}
		fmt.Println(line)
	}
	fmt.Println(strings.Repeat("-", width))
}
