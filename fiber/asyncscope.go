package fiber

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pergyra-lang/core/errs"
)

// AsyncScope is the structured-concurrency wrapper from spec §4.5: every
// fiber spawned through a scope is tracked so the scope can wait for or
// cancel all of them together, and nested scopes link their cancellation
// so cancelling a parent cancels its children transitively.
type AsyncScope struct {
	mu         sync.Mutex
	scheduler  *Scheduler
	owner      *Fiber // the fiber that created this scope, or nil for a root scope
	fibers     []*Fiber
	cancelled  int32 // atomic bool
	hasError   int32 // atomic bool
	firstError error
	disposed   int32 // atomic bool
	parent     *AsyncScope
	children   []*AsyncScope
}

// NewScope creates an AsyncScope bound to sched. owner, if non-nil, is the
// fiber on whose behalf this scope exists; parent, if non-nil, links this
// scope's cancellation to its parent's.
func NewScope(sched *Scheduler, owner *Fiber, parent *AsyncScope) *AsyncScope {
	s := &AsyncScope{scheduler: sched, owner: owner, parent: parent}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return s
}

// Spawn creates a fiber whose work is wrapped so that, on entry, it
// observes the scope's cancellation token before running fn, and on exit
// removes itself from the scope's fiber list, per spec §4.5. The fiber
// runs on the scope's own scheduler.
func (s *AsyncScope) Spawn(fn Func, priority Priority) *Fiber {
	return s.SpawnOn(s.scheduler, fn, priority)
}

// SpawnOn is Spawn but on an explicitly chosen scheduler rather than the
// scope's own. The Party Dispatcher uses this to track fibers bound for
// different scheduler-tag queues (CpuFiber, IoFiber, ...) under a single
// scope, per spec §4.6.
func (s *AsyncScope) SpawnOn(sched *Scheduler, fn Func, priority Priority) *Fiber {
	wrapped := func(ctx *Context) (interface{}, error) {
		if s.isCancelled() {
			err := errs.New(errs.Cancelled, "AsyncScope.Spawn", nil)
			s.recordError(err)
			return nil, err
		}
		result, err := fn(ctx)
		if err != nil {
			s.recordError(err)
		}
		return result, err
	}
	// OnFinish fires exactly once on any terminal transition, including a
	// forced finish from Cancel while the fiber sits Suspended or Blocked,
	// which the fiber body itself never resumes to observe.
	f := sched.SpawnWithFinish(wrapped, priority, s.owner, func(finished *Fiber) { s.remove(finished) })

	s.mu.Lock()
	s.fibers = append(s.fibers, f)
	s.mu.Unlock()
	return f
}

func (s *AsyncScope) remove(target *Fiber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.fibers {
		if f == target {
			s.fibers = append(s.fibers[:i], s.fibers[i+1:]...)
			return
		}
	}
}

func (s *AsyncScope) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstError == nil {
		s.firstError = err
	}
	atomic.StoreInt32(&s.hasError, 1)
}

func (s *AsyncScope) isCancelled() bool { return atomic.LoadInt32(&s.cancelled) != 0 }

// Cancel sets the scope's cancellation token and calls Cancel on every
// fiber currently tracked, cascading to every linked child scope.
func (s *AsyncScope) Cancel() {
	atomic.StoreInt32(&s.cancelled, 1)

	s.mu.Lock()
	fibers := append([]*Fiber(nil), s.fibers...)
	children := append([]*AsyncScope(nil), s.children...)
	s.mu.Unlock()

	for _, f := range fibers {
		f.Cancel()
	}
	for _, c := range children {
		c.Cancel()
	}
}

// WaitAll blocks until the scope's fiber list is empty.
func (s *AsyncScope) WaitAll() {
	for {
		s.mu.Lock()
		n := len(s.fibers)
		var pending []*Fiber
		if n > 0 {
			pending = append(pending, s.fibers...)
		}
		s.mu.Unlock()
		if n == 0 {
			return
		}
		for _, f := range pending {
			<-f.Done()
		}
	}
}

// WaitAllWithTimeout blocks until the scope's fiber list is empty or the
// timeout elapses, reporting which happened.
func (s *AsyncScope) WaitAllWithTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.WaitAll()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Destroy cancels the scope, waits for every fiber to finish, and marks
// the scope disposed. Destroy is idempotent, per spec §8.
func (s *AsyncScope) Destroy() {
	if !atomic.CompareAndSwapInt32(&s.disposed, 0, 1) {
		return
	}
	s.Cancel()
	s.WaitAll()
}

// IsDisposed reports whether Destroy has completed on this scope.
func (s *AsyncScope) IsDisposed() bool { return atomic.LoadInt32(&s.disposed) != 0 }

// HasError reports whether any fiber spawned through this scope returned a
// non-nil error.
func (s *AsyncScope) HasError() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomic.LoadInt32(&s.hasError) != 0, s.firstError
}

// ParallelFor spawns one fiber per task and waits for all of them, per
// spec §4.5's convenience pattern.
func (s *AsyncScope) ParallelFor(tasks []Func, priority Priority) []*Fiber {
	fibers := make([]*Fiber, len(tasks))
	for i, t := range tasks {
		fibers[i] = s.Spawn(t, priority)
	}
	s.WaitAll()
	return fibers
}

// Race spawns all tasks; the first to set the atomic winner index cancels
// the scope, and the winner index is returned. Returns -1 if every task
// errored without any winning.
func (s *AsyncScope) Race(tasks []Func, priority Priority) int {
	winner := int32(-1)
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for i, t := range tasks {
		i, t := i, t
		s.Spawn(func(ctx *Context) (interface{}, error) {
			defer wg.Done()
			result, err := t(ctx)
			if err == nil && atomic.CompareAndSwapInt32(&winner, -1, int32(i)) {
				s.Cancel()
			}
			return result, err
		}, priority)
	}
	wg.Wait()
	return int(atomic.LoadInt32(&winner))
}

// MapReduce spawns one fiber per input running mapper, waits for every
// mapper to finish, then folds the results left-to-right in input order
// with reducer, per spec §4.5. It returns the accumulator so far together
// with the first mapper error met in input order.
func MapReduce[In, Out any](s *AsyncScope, inputs []In, mapper func(In) (Out, error), reducer func(acc, v Out) Out, initial Out, priority Priority) (Out, error) {
	type indexed struct {
		idx int
		val Out
		err error
	}
	results := make([]indexed, len(inputs))
	var wg sync.WaitGroup
	wg.Add(len(inputs))

	for i, in := range inputs {
		i, in := i, in
		s.Spawn(func(ctx *Context) (interface{}, error) {
			defer wg.Done()
			v, err := mapper(in)
			results[i] = indexed{idx: i, val: v, err: err}
			return v, err
		}, priority)
	}
	wg.Wait()

	acc := initial
	for _, r := range results {
		if r.err != nil {
			return acc, r.err
		}
		acc = reducer(acc, r.val)
	}
	return acc, nil
}
