package scheduler

import (
	"time"

	logx "dyntimer/pkg/logx"
)

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// computeTick returns the loop period in ms: the GCD of all running
// intervals, or the ceiling when nothing runs or the GCD exceeds it.
func computeTick(tasks map[TaskID]*record, cfg Config) int64 {
	if cfg.FixedTick > 0 {
		return cfg.FixedTick.Milliseconds()
	}
	ceiling := cfg.TickCeiling.Milliseconds()
	var g int64
	for _, r := range tasks {
		if r.status != StatusRunning {
			continue
		}
		g = gcd(g, r.interval)
	}
	if g <= 0 || g > ceiling {
		return ceiling
	}
	return g
}

// retickLocked recomputes s.tick and reports whether it changed.
func (s *Scheduler) retickLocked() bool {
	next := computeTick(s.tasks, s.cfg)
	if next == s.tick {
		return false
	}
	s.log.Debug("tick changed", logx.Duration("from", msDur(s.tick)), logx.Duration("to", msDur(next)))
	s.tick = next
	return true
}

func msDur(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
