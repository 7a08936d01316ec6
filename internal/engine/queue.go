package engine

import (
	"sync"

	"github.com/bitwebs/bitstream/internal/model"
)

// AppendEvent records that entries were appended to a writer log.
// The zero value is a bare wake-up sent by Notify.
type AppendEvent struct {
	Writer model.WriterID
	From   int64
	Count  int
}

// appendQueue is a thread-safe FIFO queue of append notifications.
//
// Appends enqueue from any goroutine; the Run loop drains. The queue uses a
// buffered channel of size 1 for signaling so that many appends collapse
// into one wake-up and the loop can wait on it alongside ctx.Done().
type appendQueue struct {
	mu     sync.Mutex
	events []AppendEvent
	closed bool
	signal chan struct{}
}

func newAppendQueue() *appendQueue {
	return &appendQueue{
		events: make([]AppendEvent, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *appendQueue) Enqueue(e AppendEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *appendQueue) TryDequeue() (AppendEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return AppendEvent{}, false
	}

	e := q.events[0]
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available.
// The channel is closed once the queue is closed.
func (q *appendQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *appendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *appendQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting events and wakes all waiters.
func (q *appendQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
