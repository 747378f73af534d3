package condition

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry asks whether name still holds value duration after it changed.
// Entries are advisory and revalidated when they fire.
type timerEntry struct {
	name     string
	value    int
	duration time.Duration
	expiry   time.Time
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerQueue serves a min-heap of expirations from one goroutine, which
// sleeps until the earliest deadline and is woken early by push or stop.
type timerQueue struct {
	fire func(timerEntry)

	mu      sync.Mutex
	entries timerHeap
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newTimerQueue(fire func(timerEntry)) *timerQueue {
	return &timerQueue{
		fire: fire,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *timerQueue) push(e timerEntry) {
	q.mu.Lock()
	heap.Push(&q.entries, &e)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *timerQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

func (q *timerQueue) start() {
	q.wg.Add(1)
	go q.run()
}

func (q *timerQueue) stop() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}

func (q *timerQueue) run() {
	defer q.wg.Done()
	for {
		var (
			timer *time.Timer
			wait  <-chan time.Time
		)
		q.mu.Lock()
		if q.entries.Len() > 0 {
			top := q.entries[0]
			if d := time.Until(top.expiry); d <= 0 {
				heap.Pop(&q.entries)
				q.mu.Unlock()
				q.fire(*top)
				continue
			} else {
				timer = time.NewTimer(d)
				wait = timer.C
			}
		}
		q.mu.Unlock()

		select {
		case <-q.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-wait:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
