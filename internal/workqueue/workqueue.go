// Package workqueue runs fire-and-forget background work. The triggering
// request never blocks on completion; the queue keeps deferred tasks alive
// past the request's own response. There is no cancellation: once scheduled,
// a task runs to completion or fails on its own.
package workqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Queue struct {
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{logger: logger}
}

// Go runs fn immediately on its own goroutine.
func (q *Queue) Go(name string, fn func()) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.recover(name)
		fn()
	}()
}

// After runs fn once the delay has elapsed. Handlers must be reentrant: the
// state they target may already have been retired by a sibling task.
func (q *Queue) After(d time.Duration, name string, fn func()) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.recover(name)
		if d > 0 {
			time.Sleep(d)
		}
		fn()
	}()
}

// Every runs fn on a fixed interval until ctx is done.
func (q *Queue) Every(ctx context.Context, d time.Duration, name string, fn func()) {
	if d <= 0 {
		return
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer q.recover(name)
					fn()
				}()
			}
		}
	}()
}

// Wait blocks until all scheduled work has finished. Used at shutdown and in
// tests; periodic tasks must be stopped via their context first.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) recover(name string) {
	if r := recover(); r != nil {
		q.logger.Error("workqueue_task_panic", "task", name, "panic", r)
	}
}
