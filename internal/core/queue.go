package core

import (
	"sync"

	"github.com/comalice/ctlfsm/internal/primitives"
)

// eventQueue is an unbounded FIFO with a single consumer. push never blocks
// beyond the lock hold.
type eventQueue struct {
	mu     sync.Mutex
	items  []*primitives.Event
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e *primitives.Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until an event is available or done is closed.
func (q *eventQueue) pop(done <-chan struct{}) (*primitives.Event, bool) {
	for {
		select {
		case <-done:
			return nil, false
		default:
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, true
		}
		q.mu.Unlock()
		select {
		case <-done:
			return nil, false
		case <-q.notify:
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
