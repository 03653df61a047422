package formatter

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormatterFormat(t *testing.T) {
	formatter := NewJSONFormatter()
	rows := sampleRows()

	output := captureOutput(t, func() {
		if err := formatter.Format(rows); err != nil {
			t.Errorf("Format returned error: %v", err)
		}
	})

	var decoded []TrialRow
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v\n%s", err, output)
	}
	if len(decoded) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(decoded))
	}
	if decoded[0].EventCount != 1234 {
		t.Errorf("Expected event count 1234, got %d", decoded[0].EventCount)
	}
	if decoded[1].EndTime != nil {
		t.Error("Expected open-ended trial to round trip a null end time")
	}
	if !strings.Contains(output, "\"end_time\": null") {
		t.Errorf("Expected null end_time in output:\n%s", output)
	}
}
