package workqueue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestGo_RunsAndWaits(t *testing.T) {
	q := New(quietLogger())
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		q.Go("task", func() { ran.Add(1) })
	}
	q.Wait()
	if got := ran.Load(); got != 5 {
		t.Fatalf("ran %d tasks, want 5", got)
	}
}

func TestAfter_DelaysExecution(t *testing.T) {
	q := New(quietLogger())
	var ran atomic.Bool
	start := time.Now()
	q.After(20*time.Millisecond, "delayed", func() { ran.Store(true) })
	if ran.Load() {
		t.Fatal("task ran before the delay elapsed")
	}
	q.Wait()
	if !ran.Load() {
		t.Fatal("task never ran")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("task completed after %v, want at least the 20ms delay", elapsed)
	}
}

func TestEvery_StopsOnContextCancel(t *testing.T) {
	q := New(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var ticks atomic.Int32
	q.Every(ctx, 5*time.Millisecond, "periodic", func() { ticks.Add(1) })

	deadline := time.Now().Add(time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 2 {
		t.Fatal("periodic task never ticked twice")
	}

	cancel()
	q.Wait()

	final := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != final {
		t.Fatal("periodic task kept ticking after cancel")
	}
}

func TestPanicRecovered(t *testing.T) {
	q := New(quietLogger())
	q.Go("panicky", func() { panic("boom") })
	q.Wait()

	// A panicking task must not poison the queue for later work.
	var ran atomic.Bool
	q.Go("follow-up", func() { ran.Store(true) })
	q.Wait()
	if !ran.Load() {
		t.Fatal("queue unusable after a recovered panic")
	}
}
