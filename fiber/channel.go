package fiber

import (
	"sync"
	"time"

	"github.com/pergyra-lang/core/errs"
)

// Channel is the bounded/unbounded FIFO collaborator from spec §4.7,
// specified as the concurrency substrate Async Scope and the Party
// Dispatcher build on. A capacity of 0 means unbounded.
type Channel[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []T
	capacity int
	closed   bool
}

// NewChannel creates a Channel with the given capacity. capacity <= 0
// means unbounded.
func NewChannel[T any](capacity int) *Channel[T] {
	c := &Channel[T]{capacity: capacity}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// Send blocks until there is room (for a bounded channel) and pushes v.
// It returns ChannelClosed if the channel is closed before or during the
// wait.
func (c *Channel[T]) Send(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.closed && c.full() {
		c.notFull.Wait()
	}
	if c.closed {
		return errs.New(errs.ChannelClosed, "Channel.Send", nil)
	}
	c.items = append(c.items, v)
	c.notEmpty.Signal()
	return nil
}

// Receive blocks until an item is available or the channel is closed and
// drained, per spec §4.7 ("a closed channel ... drains remaining items to
// receivers before reporting Closed").
func (c *Channel[T]) Receive() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.items) == 0 && !c.closed {
		c.notEmpty.Wait()
	}
	var zero T
	if len(c.items) == 0 {
		return zero, errs.New(errs.ChannelClosed, "Channel.Receive", nil)
	}
	v := c.items[0]
	c.items = c.items[1:]
	c.notFull.Signal()
	return v, nil
}

// TrySend pushes v without blocking, returning Full if the channel is at
// capacity and ChannelClosed if it is closed.
func (c *Channel[T]) TrySend(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.New(errs.ChannelClosed, "Channel.TrySend", nil)
	}
	if c.full() {
		return errs.New(errs.Full, "Channel.TrySend", nil)
	}
	c.items = append(c.items, v)
	c.notEmpty.Signal()
	return nil
}

// TryReceive pops an item without blocking, returning Empty if none is
// available.
func (c *Channel[T]) TryReceive() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if len(c.items) == 0 {
		if c.closed {
			return zero, errs.New(errs.ChannelClosed, "Channel.TryReceive", nil)
		}
		return zero, errs.New(errs.Empty, "Channel.TryReceive", nil)
	}
	v := c.items[0]
	c.items = c.items[1:]
	c.notFull.Signal()
	return v, nil
}

// SendTimeout is Send bounded by timeout, returning Timeout if it elapses
// first.
func (c *Channel[T]) SendTimeout(v T, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- c.Send(v) }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errs.New(errs.Timeout, "Channel.SendTimeout", nil)
	}
}

// ReceiveTimeout is Receive bounded by timeout, returning Timeout if it
// elapses first.
func (c *Channel[T]) ReceiveTimeout(timeout time.Duration) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.Receive()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-time.After(timeout):
		var zero T
		return zero, errs.New(errs.Timeout, "Channel.ReceiveTimeout", nil)
	}
}

// Close closes the channel. Further Sends fail with ChannelClosed; pending
// items still drain to Receive/TryReceive callers first.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// Len returns the number of items currently buffered.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Channel[T]) full() bool {
	return c.capacity > 0 && len(c.items) >= c.capacity
}

// SelectCase is one arm of a Select call: Ready reports whether this case
// can proceed right now without blocking, and Exec performs it.
type SelectCase struct {
	Ready func() bool
	Exec  func()
}

// Select picks a ready case, preferring the first one found ready when
// more than one is; this scheduler is not in deterministic mode here since
// Select's case order is caller-controlled and therefore already
// deterministic. If no case is ready, Select blocks, polling at a short
// interval until one is or timeout elapses.
func Select(timeout time.Duration, cases ...SelectCase) bool {
	deadline := time.Now().Add(timeout)
	for {
		for _, c := range cases {
			if c.Ready() {
				c.Exec()
				return true
			}
		}
		if timeout > 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
