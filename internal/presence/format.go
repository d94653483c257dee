package presence

import (
	"fmt"
	"time"
)

// FormatDuration renders d as M:SS, truncating to whole seconds. Negative
// durations render as 0:00.
func FormatDuration(d time.Duration) string {
	total := max(int64(d/time.Second), 0)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatElapsed renders d as "1h 5m" when at least an hour, else "5m".
func FormatElapsed(d time.Duration) string {
	secs := max(int64(d/time.Second), 0)
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
