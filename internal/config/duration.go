package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField parses a config duration. Go duration strings ("90s",
// "1m30s") and bare integers, read as seconds, are accepted. Empty is zero.
// path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var (
		d   time.Duration
		err error
	)
	if n, aerr := strconv.Atoi(s); aerr == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// ParseClock parses a 24h "HH:MM" wall-clock time such as the digest hour.
func ParseClock(path, raw string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if ok && len(mm) == 2 {
		hour, err = strconv.Atoi(hh)
		if err == nil {
			minute, err = strconv.Atoi(mm)
		}
		if err == nil && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
			return hour, minute, nil
		}
	}
	return 0, 0, fmt.Errorf("%s: want HH:MM, got %q", path, raw)
}
