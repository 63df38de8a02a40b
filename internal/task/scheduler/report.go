package scheduler

import (
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"

	"dyntimer/internal/task"
	logx "dyntimer/pkg/logx"
)

// reporter throttles failure warnings. A failing 1ms task would otherwise
// flood the log; excess reports drop to debug and are counted.
type reporter struct {
	log        logx.Logger
	limiter    atomic.Pointer[rate.Limiter]
	suppressed atomic.Uint64
}

func newReporter(log logx.Logger, perSec int) *reporter {
	r := &reporter{log: log}
	r.setRate(perSec)
	return r
}

func (r *reporter) setRate(perSec int) {
	if perSec <= 0 {
		perSec = 1
	}
	r.limiter.Store(rate.NewLimiter(rate.Limit(perSec), perSec))
}

func (r *reporter) failure(rec *record, err error) {
	fields := []logx.Field{
		logx.Uint32("id", uint32(rec.id)),
		logx.String("name", rec.name),
		logx.String("mode", rec.mode.String()),
		logx.Uint64("failures", rec.failures),
		logx.Err(err),
	}
	var pe *task.PanicError
	if errors.As(err, &pe) {
		fields = append(fields, logx.Stack(string(pe.Stack)))
	}
	r.warn("task failed", fields...)
}

func (r *reporter) usage(msg string, fields ...logx.Field) {
	r.warn(msg, fields...)
}

func (r *reporter) warn(msg string, fields ...logx.Field) {
	if !r.limiter.Load().Allow() {
		r.suppressed.Add(1)
		r.log.Debug(msg, fields...)
		return
	}
	if n := r.suppressed.Swap(0); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	r.log.Warn(msg, fields...)
}
