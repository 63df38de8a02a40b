package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseRequiredDuration parses a duration that must be present and at least
// floor. Durations below one millisecond are rejected by the scheduler, so
// callers pass time.Millisecond.
func ParseRequiredDuration(path, raw string, floor time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%s: required", path)
	}
	if d < floor {
		return 0, fmt.Errorf("%s: %s is below %s", path, d, floor)
	}
	return d, nil
}
