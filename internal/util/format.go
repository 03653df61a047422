package util

import (
	"fmt"
	"time"
)

// FormatDuration renders an elapsed time as hours and minutes, or minutes and
// seconds for short durations.
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
