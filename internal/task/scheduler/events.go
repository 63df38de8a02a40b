package scheduler

import "time"

// Event types published on the bus.
const (
	EventAdded    = "timer.task.added"
	EventStarted  = "timer.task.started"
	EventPaused   = "timer.task.paused"
	EventStopped  = "timer.task.stopped"
	EventExecuted = "timer.task.executed"
	EventFailed   = "timer.task.failed"
	EventFinished = "timer.task.finished"
)

// TaskEvent is the Data payload of every scheduler event.
type TaskEvent struct {
	Instance string        `json:"instance"`
	ID       TaskID        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Mode     string        `json:"mode"`
	Runs     uint64        `json:"runs"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}
