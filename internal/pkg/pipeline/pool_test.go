package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEverySubmittedTask(t *testing.T) {
	pool := NewPool("double", 4, 16, func(_ context.Context, in int) (int, error) {
		return in * 2, nil
	})
	pool.Start(context.Background())
	defer pool.Shutdown()

	for i := 1; i <= 10; i++ {
		pool.Submit(i)
	}

	got := make(map[int]bool)
	for i := 0; i < 10; i++ {
		select {
		case out := <-pool.Results():
			got[out] = true
		case failed := <-pool.Errors():
			t.Fatalf("unexpected error for input %d: %v", failed.Input, failed.Err)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	pool.Drain()

	for i := 1; i <= 10; i++ {
		if !got[i*2] {
			t.Errorf("missing result %d", i*2)
		}
	}
}

func TestPoolTaskFailureDoesNotStopPool(t *testing.T) {
	errOdd := errors.New("odd input")
	pool := NewPool("odd", 2, 8, func(_ context.Context, in int) (string, error) {
		if in%2 == 1 {
			return "", errOdd
		}
		return strconv.Itoa(in), nil
	})
	pool.Start(context.Background())
	defer pool.Shutdown()

	for i := 0; i < 6; i++ {
		pool.Submit(i)
	}

	var ok, failed int
	for i := 0; i < 6; i++ {
		select {
		case <-pool.Results():
			ok++
		case te := <-pool.Errors():
			if !errors.Is(te.Err, errOdd) {
				t.Fatalf("err = %v, want errOdd", te.Err)
			}
			failed++
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}

	if ok != 3 || failed != 3 {
		t.Errorf("ok = %d, failed = %d, want 3 and 3", ok, failed)
	}
}

func TestPoolWorkerBound(t *testing.T) {
	var inFlight, peak atomic.Int32

	pool := NewPool("bounded", 2, 32, func(_ context.Context, in int) (int, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)
		return in, nil
	})
	pool.Start(context.Background())
	defer pool.Shutdown()

	for i := 0; i < 20; i++ {
		pool.Submit(i)
	}
	pool.Drain()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", p)
	}
}

func TestPoolShutdownDiscardsUnstartedTasks(t *testing.T) {
	block := make(chan struct{})
	var ran atomic.Int32

	pool := NewPool("slow", 1, 16, func(_ context.Context, in int) (int, error) {
		ran.Add(1)
		<-block
		return in, nil
	})
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		pool.Submit(i)
	}

	// let the single worker pick up the first task
	for ran.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()

	// give Shutdown time to signal stop before the worker unblocks
	time.Sleep(50 * time.Millisecond)
	close(block)

	<-shutdownDone
	pool.Shutdown() // idempotent
	pool.Drain()    // discarded tasks are still acknowledged

	if r := ran.Load(); r != 1 {
		t.Errorf("ran = %d tasks, want only the in-flight one", r)
	}

	// submits after shutdown are dropped, not queued
	pool.Submit(99)
	pool.Drain()
}
