package scheduler

// evaluate decides whether r fires at now (unix ms) and whether it retires
// after this tick. It updates r's timing fields when the task fires.
//
// The first firing rebases start to now-interval so a late first tick does
// not shorten a span. A span task retires once now-start reaches span and
// still gets its final firing in that tick when the interval has elapsed.
func evaluate(r *record, now int64) (execute, finish bool) {
	if r.lastExecute == 0 {
		if now-r.start < r.interval {
			return false, false
		}
		r.lastExecute = now
		r.start = now - r.interval
		finish = r.mode.single() || (r.mode == ModeSpan && now-r.start >= r.span)
		return true, finish
	}

	if r.mode == ModeSpan && now-r.start >= r.span {
		finish = true
	}
	if now-r.lastExecute >= r.interval {
		r.lastExecute = now
		execute = true
	}
	return execute, finish
}
