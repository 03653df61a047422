package formatter

import (
	"encoding/csv"
	"fmt"
	"os"
)

type CSVFormatter struct{}

func NewCSVFormatter() *CSVFormatter {
	return &CSVFormatter{}
}

func (f *CSVFormatter) Format(rows []TrialRow) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	headers := []string{
		"trial", "start_time", "end_time", "duration",
		"wrt_time", "events", "samples", "enhancements",
	}
	if err := w.Write(headers); err != nil {
		return err
	}

	for _, row := range rows {
		endValue := ""
		durationValue := ""
		if row.EndTime != nil {
			endValue = fmt.Sprintf("%f", *row.EndTime)
		}
		if duration, ok := row.Duration(); ok {
			durationValue = fmt.Sprintf("%f", duration)
		}
		record := []string{
			fmt.Sprintf("%d", row.Number),
			fmt.Sprintf("%f", row.StartTime),
			endValue,
			durationValue,
			fmt.Sprintf("%f", row.WrtTime),
			fmt.Sprintf("%d", row.EventCount),
			fmt.Sprintf("%d", row.SampleCount),
			fmt.Sprintf("%d", row.EnhancementCount),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	return nil
}
