package app

import (
	"context"
	"fmt"
	"time"

	"dyntimer/internal/config"
	"dyntimer/internal/eventbus"
	"dyntimer/internal/runtime/supervisor"
	"dyntimer/internal/sdnotify"
	"dyntimer/internal/storage"
	"dyntimer/internal/task/scheduler"
	logx "dyntimer/pkg/logx"
)

// App is the dyntimer daemon: a scheduler driven by a config file.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  storage.Store
	sched  *scheduler.Scheduler
	jobs   *jobRunner
	notify *sdnotify.Notifier
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(ValidateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	bus := eventbus.New()
	sched := scheduler.New(schedCfg, log, bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sched:   sched,
		notify:  sdnotify.New(cfg.Systemd.Notify, log),
	}, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	if a.store != nil {
		events, unsub := a.bus.Subscribe(1024)
		rec := &recorder{store: a.store, log: a.log.With(logx.String("comp", "history"))}
		a.sup.Go0("history.recorder", func(c context.Context) {
			defer unsub()
			rec.run(c, events)
		})
	}

	specs, err := parseJobs(cfg.Jobs)
	if err != nil {
		return err
	}
	a.jobs = newJobRunner(a.sched, a.sup, a.log)
	a.jobs.apply(specs)

	if cfg.Systemd.Watchdog {
		if err := a.startWatchdog(); err != nil {
			return err
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		applied := cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(applied, next)
				applied = next
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithMaxRestarts(5),
	)

	_ = a.notify.Ready()
	_ = a.notify.Status(statusLine(a.sched.Snapshot()))
	a.log.Info("app started", logx.String("config", a.cfgPath), logx.Int("tasks", a.sched.Len()), logx.Duration("tick", a.sched.Tick()))
	return nil
}

// startWatchdog pings systemd from a periodic task, so a wedged scheduler
// loop stops the pings and systemd restarts the unit.
func (a *App) startWatchdog() error {
	every, err := sdnotify.WatchdogInterval()
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	if every <= 0 {
		a.log.Debug("systemd watchdog not requested by the service manager")
		return nil
	}
	id, _, err := scheduler.AddFunc(a.sched, scheduler.ModePeriod, every, 0, func() (struct{}, error) {
		return struct{}{}, a.notify.Watchdog()
	}, scheduler.WithName("systemd.watchdog"))
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	if err := a.sched.Control(id, scheduler.CommandStart); err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	change := config.Diff(prev, next)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_ = a.notify.Reloading()
	defer func() {
		_ = a.notify.Ready()
		_ = a.notify.Status(statusLine(a.sched.Snapshot()))
	}()

	if change.Has("logging") {
		a.logs.Apply(mapLoggingConfig(next))
	}
	if change.Has("scheduler") {
		sc, err := mapSchedulerConfig(next)
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.sched.Apply(sc)
		}
	}
	if change.Has("jobs") {
		specs, err := parseJobs(next.Jobs)
		if err != nil {
			a.log.Warn("invalid jobs config; keeping previous", logx.Err(err))
		} else {
			a.jobs.apply(specs)
		}
	}
	if len(change.RestartOnly) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", change.Fields()...)
	}
	a.log.Info("config reloaded", change.Fields()...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_ = a.notify.Stopping()

	// step bounds one shutdown phase so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("jobs", 2*time.Second, func(c context.Context) error {
		if a.jobs != nil {
			a.jobs.stop(c)
		}
		return nil
	})
	step("scheduler", 3*time.Second, a.sched.Stop)
	if a.sup != nil {
		a.sup.Cancel()
		step("supervisor", 2*time.Second, a.sup.Wait)
		a.logGoroutines()
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// logGoroutines reports supervised goroutines that panicked, restarted or
// are still running after shutdown.
func (a *App) logGoroutines() {
	for _, st := range a.sup.Snapshot() {
		if st.Panics == 0 && st.Restarts == 0 && st.Active == 0 {
			continue
		}
		a.log.Warn("goroutine stats",
			logx.String("name", st.Name),
			logx.Int64("active", st.Active),
			logx.Uint64("panics", st.Panics),
			logx.Uint64("restarts", st.Restarts),
			logx.String("last_err", st.LastErr),
		)
	}
	if n := a.sup.Active(); n > 0 {
		a.log.Warn("goroutines still running after stop", logx.Int64("active", n))
	}
}

// statusLine summarizes the registry for the systemd status line.
func statusLine(snap scheduler.Snapshot) string {
	counts := map[scheduler.Status]int{}
	for _, ti := range snap.Tasks {
		counts[ti.Status]++
	}
	mode := "adaptive"
	if !snap.Adaptive {
		mode = "fixed"
	}
	return fmt.Sprintf("%d tasks (%d running, %d paused, %d idle), tick %s %s",
		len(snap.Tasks), counts[scheduler.StatusRunning], counts[scheduler.StatusPaused],
		counts[scheduler.StatusNotStarted], snap.Tick, mode)
}
