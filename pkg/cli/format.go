package cli

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration to a compact human readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs = secs - float64(mins*60)
	if mins < 60 {
		return fmt.Sprintf("%dm%.1fs", mins, secs)
	}
	hours := mins / 60
	mins = mins - hours*60
	return fmt.Sprintf("%dh%dm", hours, mins)
}

// FormatRate formats a breathing rate in breaths per minute.
// A zero rate renders as a placeholder, since the tracker reports
// zero before the first interval completes.
func FormatRate(bpm float64) string {
	if bpm == 0 {
		return "--"
	}
	return fmt.Sprintf("%.1f bpm", bpm)
}

// FormatConfidence formats a confidence value in [0, 1] as a percentage.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.0f%%", c*100)
}
