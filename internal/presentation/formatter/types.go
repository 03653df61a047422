package formatter

import (
	"github.com/penwyp/go-trial-monitor/internal/core/trial"
)

// TrialRow is one trial flattened for display: its timing plus counts of the
// data it carries.
type TrialRow struct {
	Number           int      `json:"number"`
	StartTime        float64  `json:"start_time"`
	EndTime          *float64 `json:"end_time"`
	WrtTime          float64  `json:"wrt_time"`
	EventCount       int      `json:"event_count"`
	SampleCount      int      `json:"sample_count"`
	EnhancementCount int      `json:"enhancement_count"`
}

// Duration returns the trial's duration, or false for the open-ended trial.
func (r TrialRow) Duration() (float64, bool) {
	if r.EndTime == nil {
		return 0, false
	}
	return *r.EndTime - r.StartTime, true
}

// RowsFromTrials flattens trials into display rows, numbered in order.
func RowsFromTrials(trials []*trial.Trial) []TrialRow {
	rows := make([]TrialRow, len(trials))
	for i, t := range trials {
		row := TrialRow{
			Number:           i,
			StartTime:        t.StartTime,
			EndTime:          t.EndTime,
			WrtTime:          t.WrtTime,
			EnhancementCount: len(t.Enhancements),
		}
		for _, events := range t.EventLists {
			row.EventCount += events.EventCount()
		}
		for _, chunk := range t.Signals {
			row.SampleCount += chunk.SampleCount()
		}
		rows[i] = row
	}
	return rows
}

// Formatter renders trial rows to stdout in some format.
type Formatter interface {
	Format(rows []TrialRow) error
}

// ForName returns the formatter registered under the given output name.
func ForName(name string) (Formatter, bool) {
	switch name {
	case "table", "":
		return NewTableFormatter(), true
	case "summary":
		return NewSummaryFormatter(), true
	case "csv":
		return NewCSVFormatter(), true
	case "json":
		return NewJSONFormatter(), true
	default:
		return nil, false
	}
}
