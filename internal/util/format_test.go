package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{
			name:     "sub-second",
			input:    300 * time.Millisecond,
			expected: "0.3s",
		},
		{
			name:     "seconds only",
			input:    42 * time.Second,
			expected: "42.0s",
		},
		{
			name:     "minutes and seconds",
			input:    2*time.Minute + 13*time.Second,
			expected: "2m 13s",
		},
		{
			name:     "hours and minutes",
			input:    3*time.Hour + 5*time.Minute,
			expected: "3h 5m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.input))
		})
	}
}

func TestPadDisplayWidth(t *testing.T) {
	assert.Equal(t, "abc  ", PadDisplayWidth("abc", 5, true))
	assert.Equal(t, "  abc", PadDisplayWidth("abc", 5, false))
	assert.Equal(t, "abcdef", PadDisplayWidth("abcdef", 5, true))

	// Wide characters count double.
	assert.Equal(t, 4, GetDisplayWidth("神経"))
	assert.Equal(t, "神経 ", PadDisplayWidth("神経", 5, true))
}
