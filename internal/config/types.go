package config

// Config is the on-disk configuration of the dyntimer daemon.
//
// All durations are Go duration strings (e.g. "250ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Systemd   SystemdConfig   `json:"systemd"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	// Format is "console" (default) or "json".
	Format  string      `json:"format,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig maps onto scheduler.Config.
//
// Defaults (when fields are omitted/zero):
//   - tick_ceiling: "1s"
//   - fixed_tick: "0s" (adaptive tick)
//   - failure_logs_per_sec: 1
type SchedulerConfig struct {
	TickCeiling       string `json:"tick_ceiling,omitempty"`
	FixedTick         string `json:"fixed_tick,omitempty"`
	RetireOnFailure   bool   `json:"retire_on_failure,omitempty"`
	FailureLogsPerSec int    `json:"failure_logs_per_sec,omitempty"`
}

// StorageConfig controls the optional run history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dyntimer.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// HistoryLimit caps stored runs; older rows are pruned. 0 keeps everything.
	HistoryLimit int `json:"history_limit,omitempty"`
}

type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// JobConfig declares one task registered by the daemon.
//
// Without a trigger the job is started at boot. With a cron trigger each
// fire registers and starts a fresh instance.
type JobConfig struct {
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	Interval string `json:"interval"`
	Span     string `json:"span,omitempty"`
	Message  string `json:"message,omitempty"`
	Trigger  string `json:"trigger,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}
