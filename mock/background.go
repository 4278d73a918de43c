package mock

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/launchdarkly/egg-mock/egg"
)

type backgroundTask struct {
	name string
	done chan struct{}
}

// runInBackground is installed as the application's egg.BackgroundRunner. It runs the task
// like the framework would and remembers it so that BackgroundTasksFinished can wait for it.
func (e *Extension) runInBackground(c *egg.Context, name string, fn egg.TaskFunc) {
	if name == "" {
		name = "task-" + uuid.NewString()
	}
	t := &backgroundTask{name: name, done: make(chan struct{})}
	e.lock.Lock()
	e.tasks = append(e.tasks, t)
	e.lock.Unlock()
	go func() {
		defer close(t.done)
		_ = c.RunTask(name, fn)
	}()
}

// BackgroundTasksFinished waits for every background task, including tasks started by the
// tasks it is waiting for. Task errors are logged by the application, not returned; the only
// error is ctx being done first.
func (e *Extension) BackgroundTasksFinished(ctx context.Context) error {
	for {
		e.lock.Lock()
		tasks := e.tasks
		e.tasks = nil
		e.lock.Unlock()
		if len(tasks) == 0 {
			return nil
		}

		loggers.Debugf("waiting %d background tasks", len(tasks))
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range tasks {
			t := t
			g.Go(func() error {
				select {
				case <-t.done:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		if err := g.Wait(); err != nil {
			e.lock.Lock()
			e.tasks = append(tasks, e.tasks...)
			e.lock.Unlock()
			return err
		}
		loggers.Debugf("finished %d background tasks", len(tasks))
	}
}
