package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dyntimer/internal/config"
	"dyntimer/internal/storage"
	"dyntimer/internal/task/scheduler"
	logx "dyntimer/pkg/logx"
)

// cronParser accepts 5 or 6 fields (optional seconds) and descriptors such as @hourly.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	ceiling, err := config.ParseDurationOrDefault("scheduler.tick_ceiling", sc.TickCeiling, scheduler.DefaultTickCeiling)
	if err != nil {
		return scheduler.Config{}, err
	}
	fixed, err := config.ParseDurationField("scheduler.fixed_tick", sc.FixedTick)
	if err != nil {
		return scheduler.Config{}, err
	}
	if fixed > 0 && fixed < time.Millisecond {
		return scheduler.Config{}, fmt.Errorf("scheduler.fixed_tick: %s is below 1ms", fixed)
	}
	if sc.FailureLogsPerSec < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.failure_logs_per_sec must be >= 0")
	}
	return scheduler.Config{
		TickCeiling:       ceiling,
		FixedTick:         fixed,
		RetireOnFailure:   sc.RetireOnFailure,
		FailureLogsPerSec: sc.FailureLogsPerSec,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}

	switch driver {
	case "file":
		return storage.Config{Driver: driver, Path: path, HistoryLimit: sc.HistoryLimit}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, HistoryLimit: sc.HistoryLimit}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// jobSpec is a validated config.JobConfig.
type jobSpec struct {
	name     string
	mode     scheduler.Mode
	interval time.Duration
	span     time.Duration
	message  string
	trigger  string
	schedule cron.Schedule
}

func parseJob(i int, jc config.JobConfig) (jobSpec, error) {
	path := fmt.Sprintf("jobs[%d]", i)
	js := jobSpec{
		name:    strings.TrimSpace(jc.Name),
		message: strings.TrimSpace(jc.Message),
		trigger: strings.TrimSpace(jc.Trigger),
	}
	if js.message == "" {
		js.message = "job fired"
	}

	modeStr := jc.Mode
	if strings.TrimSpace(modeStr) == "" {
		modeStr = "period"
	}
	mode, err := scheduler.ParseMode(modeStr)
	if err != nil {
		return jobSpec{}, fmt.Errorf("%s.mode: %w", path, err)
	}
	js.mode = mode

	if js.interval, err = config.ParseRequiredDuration(path+".interval", jc.Interval, time.Millisecond); err != nil {
		return jobSpec{}, err
	}
	if js.span, err = config.ParseDurationField(path+".span", jc.Span); err != nil {
		return jobSpec{}, err
	}
	if mode == scheduler.ModeSpan && js.span <= 0 {
		return jobSpec{}, fmt.Errorf("%s.span: required for span mode", path)
	}

	if js.trigger != "" {
		sched, err := cronParser.Parse(js.trigger)
		if err != nil {
			return jobSpec{}, fmt.Errorf("%s.trigger: %w", path, err)
		}
		js.schedule = sched
	}
	return js, nil
}

// parseJobs skips disabled jobs.
func parseJobs(jcs []config.JobConfig) ([]jobSpec, error) {
	out := make([]jobSpec, 0, len(jcs))
	for i, jc := range jcs {
		if jc.Disabled {
			continue
		}
		js, err := parseJob(i, jc)
		if err != nil {
			return nil, err
		}
		out = append(out, js)
	}
	return out, nil
}

// ValidateConfig runs every mapping the daemon performs on cfg. It is used as
// the config manager's validator, so a bad hot reload is rejected whole.
func ValidateConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := parseJobs(cfg.Jobs); err != nil {
		return err
	}
	return nil
}

// OpenHistory opens the history store configured in cfgPath. It returns
// storage.ErrDisabled when the config has no store.
func OpenHistory(cfgPath string, log logx.Logger) (storage.Store, error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	return storage.Open(sc, log)
}
