package scheduler

import (
	"sort"
	"time"
)

// TaskInfo is a point-in-time view of one registered task.
type TaskInfo struct {
	ID        TaskID        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Mode      Mode          `json:"mode"`
	Status    Status        `json:"status"`
	Interval  time.Duration `json:"interval"`
	Span      time.Duration `json:"span,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	LastRunAt time.Time     `json:"last_run_at,omitempty"`
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
	LastError string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Instance string        `json:"instance"`
	Tick     time.Duration `json:"tick"`
	Adaptive bool          `json:"adaptive"`
	Active   bool          `json:"active"`
	Tasks    []TaskInfo    `json:"tasks"`
}

// Snapshot returns the registry sorted by id.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{
		Instance: s.instance,
		Tick:     msDur(s.tick),
		Adaptive: s.cfg.FixedTick <= 0,
		Active:   s.active.Load(),
		Tasks:    make([]TaskInfo, 0, len(s.tasks)),
	}
	for _, r := range s.tasks {
		ti := TaskInfo{
			ID:        r.id,
			Name:      r.name,
			Mode:      r.mode,
			Status:    r.status,
			Interval:  msDur(r.interval),
			Span:      msDur(r.span),
			Runs:      r.runs,
			Failures:  r.failures,
			LastError: r.lastErr,
		}
		if r.status != StatusNotStarted && r.start > 0 {
			ti.StartedAt = time.UnixMilli(r.start)
		}
		if r.lastExecute > 0 {
			ti.LastRunAt = time.UnixMilli(r.lastExecute)
		}
		out.Tasks = append(out.Tasks, ti)
	}
	s.mu.Unlock()

	sort.Slice(out.Tasks, func(i, j int) bool { return out.Tasks[i].ID < out.Tasks[j].ID })
	return out
}
