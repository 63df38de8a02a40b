package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"dyntimer/internal/runtime/supervisor"
	"dyntimer/internal/task/scheduler"
	logx "dyntimer/pkg/logx"
)

// jobRunner keeps the scheduler in sync with the configured jobs. Jobs
// without a trigger are started once; triggered jobs get a fresh instance
// on every cron fire.
type jobRunner struct {
	sched *scheduler.Scheduler
	sup   *supervisor.Supervisor
	log   logx.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	ids   map[string][]scheduler.TaskID
	count map[string]*atomic.Uint64
}

func newJobRunner(sched *scheduler.Scheduler, sup *supervisor.Supervisor, log logx.Logger) *jobRunner {
	return &jobRunner{
		sched: sched,
		sup:   sup,
		log:   log.With(logx.String("comp", "jobs")),
		ids:   map[string][]scheduler.TaskID{},
		count: map[string]*atomic.Uint64{},
	}
}

// apply replaces every running job with specs.
func (j *jobRunner) apply(specs []jobSpec) {
	j.stop(context.Background())

	j.mu.Lock()
	defer j.mu.Unlock()

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLogger{log: j.log}),
		cron.WithChain(cron.Recover(cronLogger{log: j.log})),
	)
	triggered := 0
	for _, spec := range specs {
		if spec.schedule == nil {
			if _, err := j.launchLocked(spec); err != nil {
				j.log.Warn("job start failed", logx.String("job", spec.name), logx.Err(err))
			}
			continue
		}
		spec := spec
		c.Schedule(spec.schedule, cron.FuncJob(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if _, err := j.launchLocked(spec); err != nil && !errors.Is(err, scheduler.ErrClosed) {
				j.log.Warn("triggered job start failed", logx.String("job", spec.name), logx.Err(err))
			}
		}))
		triggered++
	}
	c.Start()
	j.cron = c
	j.log.Info("jobs applied", logx.Int("jobs", len(specs)), logx.Int("triggered", triggered))
}

// launchLocked registers and starts one instance of spec.
func (j *jobRunner) launchLocked(spec jobSpec) (scheduler.TaskID, error) {
	counter := j.count[spec.name]
	if counter == nil {
		counter = &atomic.Uint64{}
		j.count[spec.name] = counter
	}
	log := j.log.With(logx.String("job", spec.name))
	fn := func() (uint64, error) {
		n := counter.Add(1)
		log.Info(spec.message, logx.Uint64("run", n))
		return n, nil
	}

	id, fut, err := scheduler.AddFunc(j.sched, spec.mode, spec.interval, spec.span, fn, scheduler.WithName(spec.name))
	if err != nil {
		return 0, err
	}
	if err := j.sched.Control(id, scheduler.CommandStart); err != nil {
		return 0, err
	}

	live := j.ids[spec.name][:0]
	for _, old := range j.ids[spec.name] {
		if _, err := j.sched.Status(old); err == nil {
			live = append(live, old)
		}
	}
	j.ids[spec.name] = append(live, id)

	if fut.Valid() && j.sup != nil {
		j.sup.Go0("job.result", func(ctx context.Context) {
			v, err := fut.Wait(ctx)
			switch {
			case err == nil:
				log.Info("job result", logx.Uint64("value", v))
			case ctx.Err() == nil:
				log.Debug("job result unavailable", logx.Err(err))
			}
		})
	}
	log.Debug("job started", logx.Uint32("id", uint32(id)), logx.String("mode", spec.mode.String()))
	return id, nil
}

// stop halts cron triggers and stops every task started for a job.
func (j *jobRunner) stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for name, ids := range j.ids {
		for _, id := range ids {
			err := j.sched.Control(id, scheduler.CommandStop)
			if err != nil && !errors.Is(err, scheduler.ErrTaskNotFound) && !errors.Is(err, scheduler.ErrClosed) {
				j.log.Warn("job stop failed", logx.String("job", name), logx.Err(err))
			}
		}
		delete(j.ids, name)
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if t, ok := kv[i+1].(time.Time); ok {
			out = append(out, logx.Time(key, t))
			continue
		}
		out = append(out, logx.Any(key, kv[i+1]))
	}
	return out
}
