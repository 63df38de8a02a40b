package app

import (
	"context"
	"time"

	"dyntimer/internal/eventbus"
	"dyntimer/internal/storage"
	"dyntimer/internal/task/scheduler"
	logx "dyntimer/pkg/logx"
)

var recordedEvents = map[string]bool{
	scheduler.EventExecuted: true,
	scheduler.EventFailed:   true,
	scheduler.EventFinished: true,
	scheduler.EventStopped:  true,
}

// recorder persists scheduler events to the history store.
type recorder struct {
	store storage.Store
	log   logx.Logger
}

// run consumes events until ctx is done, then drains what is already buffered.
func (r *recorder) run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			r.record(e)
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return
					}
					r.record(e)
				default:
					return
				}
			}
		}
	}
}

func (r *recorder) record(e eventbus.Event) {
	if !recordedEvents[e.Type] {
		return
	}
	te, ok := e.Data.(scheduler.TaskEvent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.store.AppendRun(ctx, storage.RunRecord{
		At:       e.Time,
		Instance: te.Instance,
		TaskID:   uint32(te.ID),
		Name:     te.Name,
		Mode:     te.Mode,
		Event:    e.Type,
		Runs:     te.Runs,
		TookMS:   te.Duration.Milliseconds(),
		Error:    te.Error,
	})
	if err != nil {
		r.log.Warn("history append failed", logx.String("event", e.Type), logx.Err(err))
	}
}
