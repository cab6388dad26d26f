package fiber

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, workers int) *Scheduler {
	t.Helper()
	s := New(Config{Workers: workers, DeterministicSeed: 1})
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestSpawnRunsToCompletion(t *testing.T) {
	s := newTestScheduler(t, 2)

	f := s.Spawn(func(ctx *Context) (interface{}, error) {
		return 42, nil
	}, Normal, nil)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("fiber did not complete in time")
	}

	result, err := f.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %v, want 42", result)
	}
	if f.State() != Done {
		t.Fatalf("state = %v, want Done", f.State())
	}
}

func TestYieldRequeuesFiber(t *testing.T) {
	s := newTestScheduler(t, 1)

	var yields int32
	f := s.Spawn(func(ctx *Context) (interface{}, error) {
		for i := 0; i < 3; i++ {
			atomic.AddInt32(&yields, 1)
			ctx.Yield()
		}
		return "done", nil
	}, Normal, nil)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("fiber did not complete in time")
	}

	if atomic.LoadInt32(&yields) != 3 {
		t.Fatalf("yields = %d, want 3", yields)
	}
}

func TestSuspendResumesViaUnblock(t *testing.T) {
	s := newTestScheduler(t, 1)

	started := make(chan struct{})
	f := s.Spawn(func(ctx *Context) (interface{}, error) {
		close(started)
		ctx.Suspend()
		return "resumed", nil
	}, Normal, nil)

	<-started
	// Give the worker time to observe the Suspended state before resuming.
	time.Sleep(10 * time.Millisecond)
	if f.State() != Suspended {
		t.Fatalf("state = %v, want Suspended", f.State())
	}

	s.Unblock(f)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("fiber did not complete after Unblock")
	}
	result, err := f.Result()
	if err != nil || result != "resumed" {
		t.Fatalf("result = %v, err = %v, want \"resumed\", nil", result, err)
	}
}

func TestCancelPropagatesToChildren(t *testing.T) {
	s := newTestScheduler(t, 2)

	parentStarted := make(chan struct{})
	childSuspended := make(chan *Fiber, 1)

	parent := s.Spawn(func(ctx *Context) (interface{}, error) {
		close(parentStarted)
		child := s.Spawn(func(cctx *Context) (interface{}, error) {
			cctx.Suspend()
			return nil, nil
		}, Normal, ctx.Fiber())
		childSuspended <- child
		ctx.Suspend()
		return nil, nil
	}, Normal, nil)

	<-parentStarted
	child := <-childSuspended
	time.Sleep(20 * time.Millisecond)

	parent.Cancel()

	select {
	case <-parent.Done():
	case <-time.After(time.Second):
		t.Fatal("parent did not finish after cancel")
	}
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child did not finish after parent cancel")
	}
}

func TestWorkStealingCompletesAllFibers(t *testing.T) {
	s := newTestScheduler(t, 4)

	const n = 50
	fibers := make([]*Fiber, n)
	for i := 0; i < n; i++ {
		fibers[i] = s.Spawn(func(ctx *Context) (interface{}, error) {
			return nil, nil
		}, Normal, nil)
	}
	for _, f := range fibers {
		select {
		case <-f.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("a fiber did not complete under work stealing")
		}
	}
	if s.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", s.ActiveCount())
	}
}
