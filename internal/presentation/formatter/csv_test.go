package formatter

import (
	"strings"
	"testing"
)

func TestCSVFormatterFormat(t *testing.T) {
	formatter := NewCSVFormatter()
	rows := sampleRows()

	output := captureOutput(t, func() {
		if err := formatter.Format(rows); err != nil {
			t.Errorf("Format returned error: %v", err)
		}
	})

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines:\n%s", len(lines), output)
	}
	if !strings.HasPrefix(lines[0], "trial,start_time,end_time") {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,0.000000,2.500000,2.500000") {
		t.Errorf("Unexpected first row: %s", lines[1])
	}
	// The open-ended trial has empty end and duration fields.
	if !strings.HasPrefix(lines[2], "1,2.500000,,,") {
		t.Errorf("Unexpected second row: %s", lines[2])
	}
}
