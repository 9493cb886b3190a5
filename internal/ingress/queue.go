// Package ingress holds samples produced outside the control loop until the
// loop drains them.
//
// The queue has a fixed capacity. Push never blocks and never allocates:
// when the queue is full the new sample is dropped and counted, and the
// samples already queued are kept.
package ingress

import "sync/atomic"

// DefaultCapacity is the number of outstanding samples the device keeps.
const DefaultCapacity = 10

// Queue is a bounded FIFO. Push is safe to call from edge-handler and timer
// goroutines; Drain is called by the control loop.
type Queue[T any] struct {
	ch       chan T
	dropped  atomic.Uint64
	overflow atomic.Bool // set on the first drop since the last TakeOverflow
}

// New creates a queue holding at most capacity entries.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Push enqueues v, or drops it when the queue is full.
// It reports whether v was queued.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		q.dropped.Add(1)
		q.overflow.Store(true)
		return false
	}
}

// Drain removes and returns queued entries, oldest first. It takes at most
// Cap entries so a busy producer cannot keep the loop draining forever.
func (q *Queue[T]) Drain() []T {
	n := len(q.ch)
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < cap(q.ch); i++ {
		select {
		case v := <-q.ch:
			out = append(out, v)
		default:
			return out
		}
	}
	return out
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue bound.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Dropped returns the total number of entries dropped since creation.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// TakeOverflow reports whether anything was dropped since the previous
// call and clears the flag. The loop uses it to log once per burst.
func (q *Queue[T]) TakeOverflow() bool {
	return q.overflow.Swap(false)
}
