package scheduler

import (
	"fmt"
	"strings"
	"time"

	"dyntimer/internal/task"
)

// TaskID identifies a task within one Scheduler. IDs start at 1 and are
// never reused by the same Scheduler.
type TaskID uint32

// Mode selects how a task repeats and when it retires.
type Mode int

const (
	ModePeriod Mode = iota + 1
	ModeSpan
	ModeSingle
	ModeSingleWithResult
)

func (m Mode) String() string {
	switch m {
	case ModePeriod:
		return "period"
	case ModeSpan:
		return "span"
	case ModeSingle:
		return "single"
	case ModeSingleWithResult:
		return "single_result"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) valid() bool { return m >= ModePeriod && m <= ModeSingleWithResult }

func (m Mode) single() bool { return m == ModeSingle || m == ModeSingleWithResult }

// ParseMode accepts the names printed by Mode.String, case-insensitively.
// "once" is an alias of "single", "result" of "single_result".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "period", "periodic":
		return ModePeriod, nil
	case "span":
		return ModeSpan, nil
	case "single", "once":
		return ModeSingle, nil
	case "single_result", "result":
		return ModeSingleWithResult, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Status is the lifecycle state of a registered task.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusPaused
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Command is a control request for an existing task.
type Command int

const (
	CommandStart Command = iota
	CommandStop
	CommandPause
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandPause:
		return "pause"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// DefaultTickCeiling bounds the adaptive tick when no task is running or the
// GCD of running intervals is larger.
const DefaultTickCeiling = time.Second

// Config controls a Scheduler. The zero value is usable.
type Config struct {
	// TickCeiling is the largest tick the loop will sleep. <=0 means DefaultTickCeiling.
	TickCeiling time.Duration
	// FixedTick, when > 0, disables the adaptive tick and polls at this rate.
	FixedTick time.Duration
	// RetireOnFailure removes a repeating task after its first failed run.
	RetireOnFailure bool
	// FailureLogsPerSec caps warn-level failure logs (default 1). Excess goes to debug.
	FailureLogsPerSec int
}

func (c Config) withDefaults() Config {
	if c.TickCeiling <= 0 {
		c.TickCeiling = DefaultTickCeiling
	}
	if c.TickCeiling < time.Millisecond {
		c.TickCeiling = time.Millisecond
	}
	if c.FixedTick < 0 {
		c.FixedTick = 0
	}
	if c.FixedTick > 0 && c.FixedTick < time.Millisecond {
		c.FixedTick = time.Millisecond
	}
	if c.FailureLogsPerSec <= 0 {
		c.FailureLogsPerSec = 1
	}
	return c
}

// record is the scheduler's bookkeeping for one task. Times are unix
// milliseconds; lastExecute == 0 means the task has not fired since it was
// last started. Guarded by Scheduler.mu.
type record struct {
	id       TaskID
	name     string
	mode     Mode
	interval int64
	span     int64

	start       int64
	lastExecute int64
	status      Status

	runs     uint64
	failures uint64
	lastErr  string

	task task.Runnable
}

// AddOption customizes a registration.
type AddOption func(*addOptions)

type addOptions struct {
	name string
}

// WithName labels the task in logs, events, and snapshots.
func WithName(name string) AddOption {
	return func(o *addOptions) { o.name = strings.TrimSpace(name) }
}

func (m Mode) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
