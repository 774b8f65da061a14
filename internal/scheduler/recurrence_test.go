package scheduler

import (
	"testing"
	"time"
)

func TestParseRecurrence(t *testing.T) {
	fallback := 7 * time.Minute
	cases := []struct {
		spec string
		want time.Duration
		ok   bool
	}{
		{"*/5 * * * *", 5 * time.Minute, true},
		{"* * * * *", time.Minute, true},
		{"every 10 minutes", 10 * time.Minute, true},
		{"every 1 hour", time.Hour, true},
		{"every 30 seconds", 30 * time.Second, true},
		{"@every 90s", 90 * time.Second, true},
		{"@hourly", time.Hour, true},
		{"@daily", 24 * time.Hour, true},
		{"15m", 15 * time.Minute, true},
		{"  @HOURLY  ", time.Hour, true},
		{"", fallback, false},
		{"0 3 * * *", fallback, false},
		{"*/0 * * * *", fallback, false},
		{"every five minutes", fallback, false},
		{"every 2 fortnights", fallback, false},
		{"@every -1s", fallback, false},
		{"tomorrow", fallback, false},
	}
	for _, tc := range cases {
		got, ok := ParseRecurrence(tc.spec, fallback)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseRecurrence(%q) = %s,%v want %s,%v", tc.spec, got, ok, tc.want, tc.ok)
		}
	}
}
