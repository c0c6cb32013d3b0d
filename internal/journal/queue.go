package journal

import (
	"context"

	"go.uber.org/atomic"

	"rideway/pkg/exception"
)

// queue is a bounded, non-blocking hand-off between the client callbacks and
// the database writer.
type queue struct {
	ch     chan Event
	done   chan struct{}
	closed atomic.Bool
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &queue{
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
}

// TryPublish enqueues an event without blocking.
func (q *queue) TryPublish(e Event) error {
	if q.closed.Load() {
		return exception.ErrJournalQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return exception.ErrJournalQueueFull
	}
}

// Close stops the queue from accepting new events. Run drains what is left.
func (q *queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Run consumes events until the context is done or the queue is closed and empty.
func (q *queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q.ch:
			handler(e)
		case <-q.done:
			for {
				select {
				case e := <-q.ch:
					handler(e)
				default:
					return
				}
			}
		}
	}
}
