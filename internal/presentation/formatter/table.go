package formatter

import (
	"fmt"
	"strings"

	"github.com/penwyp/go-trial-monitor/internal/util"
)

type TableFormatter struct {
	headers []string
}

func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		headers: []string{
			"Trial", "Start (s)", "End (s)", "Duration (s)",
			"Wrt (s)", "Events", "Samples", "Enhancements",
		},
	}
}

func (f *TableFormatter) Format(rows []TrialRow) error {
	widths := f.calculateColumnWidths(rows)

	f.printBorder(widths, "top")
	f.printRow(f.headers, widths)
	f.printBorder(widths, "middle")

	var totalEvents, totalSamples, totalEnhancements int
	for _, row := range rows {
		f.printRow(f.rowValues(row), widths)
		totalEvents += row.EventCount
		totalSamples += row.SampleCount
		totalEnhancements += row.EnhancementCount
	}

	f.printBorder(widths, "middle")
	totalValues := []string{
		"Total", "", "", "", "",
		formatNumber(totalEvents),
		formatNumber(totalSamples),
		formatNumber(totalEnhancements),
	}
	f.printRow(totalValues, widths)
	f.printBorder(widths, "bottom")

	return nil
}

func (f *TableFormatter) rowValues(row TrialRow) []string {
	endValue := "-"
	durationValue := "-"
	if row.EndTime != nil {
		endValue = formatSeconds(*row.EndTime)
	}
	if duration, ok := row.Duration(); ok {
		durationValue = formatSeconds(duration)
	}
	return []string{
		fmt.Sprintf("%d", row.Number),
		formatSeconds(row.StartTime),
		endValue,
		durationValue,
		formatSeconds(row.WrtTime),
		formatNumber(row.EventCount),
		formatNumber(row.SampleCount),
		formatNumber(row.EnhancementCount),
	}
}

// calculateColumnWidths sizes each column to its widest content.
func (f *TableFormatter) calculateColumnWidths(rows []TrialRow) []int {
	widths := make([]int, len(f.headers))
	for i, header := range f.headers {
		widths[i] = util.GetDisplayWidth(header)
	}
	for _, row := range rows {
		for i, value := range f.rowValues(row) {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 5 {
			widths[i] = 5
		}
	}
	return widths
}

func (f *TableFormatter) printBorder(widths []int, borderType string) {
	var left, middle, right, separator string

	switch borderType {
	case "top":
		left, middle, right, separator = "┌", "┬", "┐", "─"
	case "middle":
		left, middle, right, separator = "├", "┼", "┤", "─"
	case "bottom":
		left, middle, right, separator = "└", "┴", "┘", "─"
	}

	fmt.Print(left)
	for i, width := range widths {
		fmt.Print(strings.Repeat(separator, width+2))
		if i < len(widths)-1 {
			fmt.Print(middle)
		}
	}
	fmt.Println(right)
}

func (f *TableFormatter) printRow(values []string, widths []int) {
	fmt.Print("│")
	for i, value := range values {
		// The trial number column is left-aligned, the rest right-aligned.
		if i == 0 {
			fmt.Printf(" %s │", util.PadDisplayWidth(value, widths[i], true))
		} else {
			fmt.Printf(" %s │", util.PadDisplayWidth(value, widths[i], false))
		}
	}
	fmt.Println()
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result []byte
	for i, digit := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, digit)
	}

	return string(result)
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}
