package orchestrator

import "sync"

// eventQueue is an unbounded FIFO of work for the coordinating loop.
// push never blocks, so supervisor goroutines can always hand off an event
// even while the loop is busy stopping that same supervisor.
type eventQueue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued so far.
func (q *eventQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
