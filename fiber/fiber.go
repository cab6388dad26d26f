// Package fiber implements the M:N work-stealing scheduler and structured
// concurrency primitives from spec §4.4/§4.5/§4.7.
//
// Fibers are cooperative tasks, but Go offers no user-mode stack-switching
// primitive to build them on (no setjmp/longjmp, no segmented stacks
// exposed to user code). Per the Open Question decision recorded in
// DESIGN.md, each Fiber body runs in its own goroutine gated by a permit
// channel: a worker "runs" a fiber by handing it the permit and blocking
// until the fiber yields, suspends, blocks, or finishes, which mirrors the
// teacher's Coroutine/Scheduler handshake (control channels rather than
// hand-rolled context switching) while still presenting the spec's
// cooperative scheduling semantics to callers.
package fiber

import (
	"sync"
	"sync/atomic"

	"github.com/pergyra-lang/core/errs"
)

var errCancelled = errs.New(errs.Cancelled, "Fiber", nil)

// State is a fiber's position in its lifecycle, per spec §3.
type State int32

const (
	New State = iota
	Ready
	Running
	Suspended
	Blocked
	Done
	Error
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Blocked:
		return "Blocked"
	case Done:
		return "Done"
	case Error:
		return "Error"
	default:
		return "State(?)"
	}
}

// Priority is a scheduling hint, per spec §4.6: Critical > High > Normal >
// Low > Idle.
type Priority int

const (
	Idle Priority = iota
	Low
	Normal
	High
	Critical
)

// Func is the body a Fiber runs. It receives a Context for cooperative
// yield/suspend/block/cancellation checks and returns a result or error.
type Func func(ctx *Context) (interface{}, error)

type yieldSignal struct {
	state State
}

// Fiber is a lightweight cooperative task, per spec §3.
type Fiber struct {
	id uint64

	state     int32 // atomic State
	cancelled int32 // atomic bool

	fn     Func
	result interface{}
	err    error

	scheduler *Scheduler
	priority  Priority

	parent     *Fiber
	childrenMu sync.Mutex
	children   []*Fiber

	switchCount uint64
	cpuTimeNs   int64

	permit  chan struct{}
	yielded chan yieldSignal
	done    chan struct{}

	finishOnce sync.Once
	onFinish   func(*Fiber)
}

// OnFinish registers a callback invoked exactly once when the fiber
// reaches a terminal state, whether by running to completion or by being
// force-finished through Cancel while Suspended or Blocked. AsyncScope
// uses this instead of a deferred cleanup inside the fiber body itself,
// since a forcibly cancelled fiber's goroutine never resumes past the
// suspension point it was parked at.
func (f *Fiber) OnFinish(cb func(*Fiber)) {
	f.onFinish = cb
}

func (f *Fiber) finish() {
	f.finishOnce.Do(func() {
		if f.onFinish != nil {
			f.onFinish(f)
		}
	})
}

func newFiber(id uint64, fn Func, priority Priority, parent *Fiber, sched *Scheduler) *Fiber {
	f := &Fiber{
		id:        id,
		fn:        fn,
		priority:  priority,
		parent:    parent,
		scheduler: sched,
		permit:    make(chan struct{}),
		yielded:   make(chan yieldSignal, 1),
		done:      make(chan struct{}),
	}
	atomic.StoreInt32(&f.state, int32(New))
	if parent != nil {
		parent.addChild(f)
	}
	go f.run()
	return f
}

func (f *Fiber) addChild(child *Fiber) {
	f.childrenMu.Lock()
	f.children = append(f.children, child)
	f.childrenMu.Unlock()
}

func (f *Fiber) snapshotChildren() []*Fiber {
	f.childrenMu.Lock()
	defer f.childrenMu.Unlock()
	return append([]*Fiber(nil), f.children...)
}

// ID returns the fiber's process-unique identifier.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() State { return State(atomic.LoadInt32(&f.state)) }

// Priority returns the fiber's scheduling priority.
func (f *Fiber) Priority() Priority { return f.priority }

// Result returns the fiber's return value and error once it has reached
// Done or Error; it is only meaningful after <-f.Done() unblocks.
func (f *Fiber) Result() (interface{}, error) { return f.result, f.err }

// Done returns a channel that closes once the fiber reaches Done or Error.
func (f *Fiber) Done() <-chan struct{} { return f.done }

// IsCancelled reports whether Cancel has been called on this fiber or an
// ancestor scope.
func (f *Fiber) IsCancelled() bool { return atomic.LoadInt32(&f.cancelled) != 0 }

// Cancel marks this fiber and every descendant cancelled. Cancellation is
// monotonic and cooperative: a Running fiber observes it only at its next
// yield/suspend/block point, per spec §4.4. A Suspended or Blocked fiber is
// marked Done immediately so the scheduler destroys it without waking its
// goroutine.
func (f *Fiber) Cancel() {
	if !atomic.CompareAndSwapInt32(&f.cancelled, 0, 1) {
		return // monotonic: already cancelled
	}
	for _, c := range f.snapshotChildren() {
		c.Cancel()
	}

	for {
		s := State(atomic.LoadInt32(&f.state))
		if s == Done || s == Error || s == Running || s == Ready || s == New {
			return
		}
		if atomic.CompareAndSwapInt32(&f.state, int32(s), int32(Done)) {
			f.err = errCancelled
			close(f.done)
			f.scheduler.fiberFinished(f)
			f.finish()
			return
		}
	}
}

// run is the fiber's goroutine body. It waits for the scheduler to grant
// it the permit, calls fn once (or skips it if the fiber was already
// cancelled), and reports the final state back on yielded.
func (f *Fiber) run() {
	<-f.permit
	if f.IsCancelled() {
		f.err = errCancelled
		f.yielded <- yieldSignal{state: Error}
		return
	}

	ctx := &Context{fiber: f}
	result, err := f.fn(ctx)
	f.result = result
	f.err = err

	final := Done
	if err != nil {
		final = Error
	}
	if f.IsCancelled() && err == nil {
		final = Done
	}
	f.yielded <- yieldSignal{state: final}
}

// Context is passed to a Func so it can cooperate with the scheduler.
type Context struct {
	fiber *Fiber
}

// Cancelled reports whether the owning fiber has been cancelled.
func (c *Context) Cancelled() bool { return c.fiber.IsCancelled() }

// Yield hands control back to the scheduler, marking the fiber Ready so it
// is requeued for another turn.
func (c *Context) Yield() {
	c.fiber.switchCount++
	c.fiber.yielded <- yieldSignal{state: Ready}
	<-c.fiber.permit
}

// Suspend parks the fiber until a future Scheduler.Unblock call resumes it.
func (c *Context) Suspend() {
	c.fiber.switchCount++
	c.fiber.yielded <- yieldSignal{state: Suspended}
	<-c.fiber.permit
}

// Block parks the fiber awaiting an external readiness event (I/O,
// timer, channel operation), resumed the same way as Suspend via Unblock.
func (c *Context) Block() {
	c.fiber.switchCount++
	c.fiber.yielded <- yieldSignal{state: Blocked}
	<-c.fiber.permit
}

// Fiber returns the owning Fiber, for callers that need its ID or parent
// chain from within the running function.
func (c *Context) Fiber() *Fiber { return c.fiber }
