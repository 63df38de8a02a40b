package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid config")

var (
	knownFormats = map[string]bool{"": true, "console": true, "json": true}
	knownDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true}
)

// Validate checks field syntax that does not depend on other packages.
// Mode names and cron triggers are checked by the consumer.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	var errs []error

	if !knownFormats[strings.ToLower(strings.TrimSpace(cfg.Logging.Format))] {
		errs = append(errs, fmt.Errorf("logging.format: unknown %q", cfg.Logging.Format))
	}
	if _, err := ParseDurationField("scheduler.tick_ceiling", cfg.Scheduler.TickCeiling); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("scheduler.fixed_tick", cfg.Scheduler.FixedTick); err != nil {
		errs = append(errs, err)
	}
	if cfg.Scheduler.FailureLogsPerSec < 0 {
		errs = append(errs, errors.New("scheduler.failure_logs_per_sec: must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		if !knownDrivers[strings.ToLower(strings.TrimSpace(st.Driver))] {
			errs = append(errs, fmt.Errorf("storage.driver: unknown %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if st.HistoryLimit < 0 {
			errs = append(errs, errors.New("storage.history_limit: must be >= 0"))
		}
	}

	seen := make(map[string]bool, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		seen[name] = true

		if _, err := ParseRequiredDuration(path+".interval", j.Interval, time.Millisecond); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField(path+".span", j.Span); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
