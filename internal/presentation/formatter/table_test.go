package formatter

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/core/trial"
)

// captureOutput runs the given function with stdout redirected and returns
// what it printed.
func captureOutput(t *testing.T, run func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	run()
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func sampleRows() []TrialRow {
	end := 2.5
	return []TrialRow{
		{Number: 0, StartTime: 0.0, EndTime: &end, WrtTime: 1.5, EventCount: 1234, SampleCount: 2000, EnhancementCount: 3},
		{Number: 1, StartTime: 2.5, EndTime: nil, WrtTime: 0.0, EventCount: 7, SampleCount: 0, EnhancementCount: 1},
	}
}

func TestNewTableFormatter(t *testing.T) {
	formatter := NewTableFormatter()
	if formatter == nil {
		t.Fatal("NewTableFormatter returned nil")
	}
	if len(formatter.headers) == 0 {
		t.Error("Expected headers to be initialized")
	}
}

func TestTableFormatterFormat(t *testing.T) {
	formatter := NewTableFormatter()
	rows := sampleRows()

	var formatErr error
	output := captureOutput(t, func() {
		formatErr = formatter.Format(rows)
	})
	if formatErr != nil {
		t.Fatalf("Format returned error: %v", formatErr)
	}

	wantInBody := []string{
		"Trial",
		"Duration (s)",
		"2.500",  // first trial's end and duration
		"1.500",  // wrt time
		"1,234",  // grouped event count
		"-",      // open-ended trial has no end
		"1,241",  // total events
		"Total",
	}
	for _, want := range wantInBody {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestTableFormatterEmpty(t *testing.T) {
	formatter := NewTableFormatter()

	output := captureOutput(t, func() {
		if err := formatter.Format(nil); err != nil {
			t.Errorf("Format returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Total") {
		t.Errorf("Expected empty table to still print a total row, got:\n%s", output)
	}
}

func TestRowsFromTrials(t *testing.T) {
	first := trial.NewTrial(0.0, model.Time(2.5))
	first.WrtTime = 1.5
	first.AddBufferData("spikes", model.NewEventList([][]float64{{0.1, 7}, {0.2, 8}}))
	first.AddBufferData("lfp", model.NewSignalChunk([][]float64{{1}, {2}, {3}}, 10.0, 0.0, []string{"ch0"}))
	first.AddEnhancement("task", "memory", "id")

	second := trial.NewTrial(2.5, nil)

	rows := RowsFromTrials([]*trial.Trial{first, second})
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].EventCount != 2 {
		t.Errorf("Expected 2 events, got %d", rows[0].EventCount)
	}
	if rows[0].SampleCount != 3 {
		t.Errorf("Expected 3 samples, got %d", rows[0].SampleCount)
	}
	if rows[0].EnhancementCount != 1 {
		t.Errorf("Expected 1 enhancement, got %d", rows[0].EnhancementCount)
	}
	if duration, ok := rows[0].Duration(); !ok || duration != 2.5 {
		t.Errorf("Expected duration 2.5, got %f (%v)", duration, ok)
	}
	if _, ok := rows[1].Duration(); ok {
		t.Error("Expected open-ended trial to have no duration")
	}
	if rows[1].Number != 1 {
		t.Errorf("Expected row number 1, got %d", rows[1].Number)
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"", "table", "summary", "csv", "json"} {
		if _, ok := ForName(name); !ok {
			t.Errorf("Expected a formatter for %q", name)
		}
	}
	if _, ok := ForName("hdf5"); ok {
		t.Error("Expected no formatter for an unknown name")
	}
}
