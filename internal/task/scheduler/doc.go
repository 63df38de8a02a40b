// Package scheduler is a millisecond-resolution, in-process task scheduler.
//
// One Scheduler owns a registry of tasks and a single background goroutine.
// On every tick the goroutine scans the registry under the registry lock,
// fires each running task whose interval has elapsed, and retires tasks
// whose mode says they are done:
//
//   - ModePeriod fires every interval until stopped.
//   - ModeSpan fires every interval until span has elapsed since start.
//   - ModeSingle and ModeSingleWithResult fire once; the latter publishes
//     the callable's return value through a task.Future.
//
// The tick is not fixed: it is the greatest common divisor of the intervals
// of all running tasks, clamped to Config.TickCeiling, and it is recomputed
// whenever the running set changes. Tasks execute serialized on the
// scheduler goroutine, so a slow callable delays every other task.
//
// Registering a task does not arm it; Control(id, CommandStart) does.
package scheduler
