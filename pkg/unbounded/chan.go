// Package unbounded provides a multi-producer multi-consumer FIFO queue with
// no capacity bound. Send never blocks on a slow consumer, which makes it safe
// to call from foreign callback threads.
package unbounded

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrClosed is returned by Send after Close, and by Recv once a cleanly
// closed queue has been drained.
var ErrClosed = errors.New("unbounded: channel closed")

// Chan is an unbounded FIFO queue. The zero value is not usable; use New.
type Chan[T any] struct {
	mu     sync.Mutex
	buf    *queue.Queue
	notify chan struct{} // closed and replaced on every state change
	closed bool
	cause  error
}

// New returns an empty open queue.
func New[T any]() *Chan[T] {
	return &Chan[T]{
		buf:    queue.New(),
		notify: make(chan struct{}),
	}
}

// Send appends v. It fails with ErrClosed once the queue is closed.
func (c *Chan[T]) Send(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.buf.Add(v)
	c.broadcastLocked()
	return nil
}

// Recv blocks until an item is available, the queue is closed and drained,
// or ctx is done. Items queued before Close are still delivered.
func (c *Chan[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		c.mu.Lock()
		if c.buf.Length() > 0 {
			v := c.buf.Remove().(T)
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			cause := c.cause
			c.mu.Unlock()
			return zero, cause
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRecv returns the head item without blocking.
func (c *Chan[T]) TryRecv() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Length() == 0 {
		var zero T
		return zero, false
	}
	return c.buf.Remove().(T), true
}

// Len reports the number of queued items.
func (c *Chan[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Length()
}

// Close closes the queue cleanly. Receivers see ErrClosed after draining.
func (c *Chan[T]) Close() { c.CloseWithError(nil) }

// CloseWithError closes the queue; receivers see err after draining.
// A nil err means ErrClosed. Only the first close has an effect.
func (c *Chan[T]) CloseWithError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	c.closed = true
	c.cause = err
	c.broadcastLocked()
}

// Purge drops every queued item and returns how many were dropped.
func (c *Chan[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.buf.Length()
	for c.buf.Length() > 0 {
		c.buf.Remove()
	}
	return n
}

// Closed reports whether the queue was closed.
func (c *Chan[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Err returns the close cause, or nil while open.
func (c *Chan[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *Chan[T]) broadcastLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}
