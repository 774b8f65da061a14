package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseRecurrence turns a schedule expression into a fixed interval.
// Supported forms:
//
//	*/N * * * *      every N minutes
//	* * * * *        every minute
//	every N minutes  (also second(s) and hour(s))
//	@every 90s       any Go duration
//	@hourly, @daily
//	15m              plain Go duration
//
// Anything else yields fallback and false.
func ParseRecurrence(spec string, fallback time.Duration) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if s == "" {
		return fallback, false
	}

	switch s {
	case "@hourly":
		return time.Hour, true
	case "@daily", "@midnight":
		return 24 * time.Hour, true
	case "* * * * *":
		return time.Minute, true
	}

	if rest, ok := strings.CutPrefix(s, "@every "); ok {
		return positiveDuration(strings.TrimSpace(rest), fallback)
	}

	if fields := strings.Fields(s); len(fields) == 5 {
		step, ok := strings.CutPrefix(fields[0], "*/")
		if !ok {
			return fallback, false
		}
		for _, f := range fields[1:] {
			if f != "*" {
				return fallback, false
			}
		}
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return fallback, false
		}
		return time.Duration(n) * time.Minute, true
	}

	if fields := strings.Fields(s); len(fields) == 3 && fields[0] == "every" {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return fallback, false
		}
		switch strings.TrimSuffix(fields[2], "s") {
		case "second":
			return time.Duration(n) * time.Second, true
		case "minute":
			return time.Duration(n) * time.Minute, true
		case "hour":
			return time.Duration(n) * time.Hour, true
		}
		return fallback, false
	}

	return positiveDuration(s, fallback)
}

func positiveDuration(raw string, fallback time.Duration) (time.Duration, bool) {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback, false
	}
	return d, true
}
