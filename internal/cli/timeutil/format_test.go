package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatAge(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "seconds", t: now.Add(-12 * time.Second), want: "12s"},
		{name: "minutes", t: now.Add(-3*time.Minute - 5*time.Second), want: "3m5s"},
		{name: "hours", t: now.Add(-2*time.Hour - 30*time.Minute), want: "2h30m"},
		{name: "days", t: now.Add(-73 * time.Hour), want: "3d1h"},
		{name: "zero time", t: time.Time{}, want: "0s"},
		{name: "future time", t: now.Add(time.Hour), want: "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAge(tt.t))
		})
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC)
	got := FormatTime(ts)

	assert.Equal(t, ts.Local().Format(LocalTimeFormat), got)
	assert.Contains(t, got, "2025")
}
