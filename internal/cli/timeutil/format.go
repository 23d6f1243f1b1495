// Package timeutil provides time formatting utilities for CLI output.
package timeutil

import (
	"fmt"
	"time"
)

// LocalTimeFormat is the format used for displaying local times in CLI output.
// Uses Go's reference time: Mon Jan 2 15:04:05 2006.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatAge returns a compact age for table columns, like "3d2h", "45m"
// or "12s". Zero and future times render as "0s".
func FormatAge(t time.Time) string {
	d := time.Since(t)
	if t.IsZero() || d < 0 {
		d = 0
	}

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatTime returns a local time string for CLI output.
func FormatTime(t time.Time) string {
	return t.Local().Format(LocalTimeFormat)
}
