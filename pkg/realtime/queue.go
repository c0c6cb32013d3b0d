package realtime

// OfflineQueue is a bounded FIFO ring of outbound messages. When full, Push
// evicts the oldest entry. It is not safe for concurrent use; the Client
// guards it with its own lock.
type OfflineQueue struct {
	buf  []*Message
	head int
	size int
}

// NewOfflineQueue allocates a queue holding at most capacity messages.
func NewOfflineQueue(capacity int) *OfflineQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &OfflineQueue{buf: make([]*Message, capacity)}
}

// Push appends msg and returns the evicted message, if any.
func (q *OfflineQueue) Push(msg *Message) (evicted *Message) {
	if q.size == len(q.buf) {
		evicted = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.size--
	}
	q.buf[(q.head+q.size)%len(q.buf)] = msg
	q.size++
	return evicted
}

// Drain removes and returns all queued messages in FIFO order.
func (q *OfflineQueue) Drain() []*Message {
	if q.size == 0 {
		return nil
	}
	out := make([]*Message, q.size)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = nil
	}
	q.head = 0
	q.size = 0
	return out
}

// Len returns the number of queued messages.
func (q *OfflineQueue) Len() int {
	return q.size
}

// Cap returns the queue capacity.
func (q *OfflineQueue) Cap() int {
	return len(q.buf)
}

// Clear drops every queued message.
func (q *OfflineQueue) Clear() {
	q.Drain()
}
