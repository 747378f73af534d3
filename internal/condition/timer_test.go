package condition

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueue_FiresInExpiryOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []string
	)
	q := newTimerQueue(func(e timerEntry) {
		mu.Lock()
		fired = append(fired, e.name)
		mu.Unlock()
	})
	q.start()
	defer q.stop()

	now := time.Now()
	q.push(timerEntry{name: "late", expiry: now.Add(120 * time.Millisecond)})
	q.push(timerEntry{name: "early", expiry: now.Add(40 * time.Millisecond)})
	q.push(timerEntry{name: "middle", expiry: now.Add(80 * time.Millisecond)})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"early", "middle", "late"}, fired)
	assert.Equal(t, 0, q.pending())
}

func TestTimerQueue_StopWakesWaiter(t *testing.T) {
	q := newTimerQueue(func(timerEntry) { t.Error("fired after stop") })
	q.start()
	q.push(timerEntry{name: "x", expiry: time.Now().Add(time.Hour)})

	done := make(chan struct{})
	go func() {
		q.stop()
		q.stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, 1, q.pending())
}
