package extensibility

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/ctlfsm/internal/config"
	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/primitives"
)

func TestChannelEventSource(t *testing.T) {
	ch := make(chan *primitives.Event, 1)
	s := NewChannelEventSource(ch)
	assert.Equal(t, (<-chan *primitives.Event)(ch), s.Events())

	require.NoError(t, s.Send(context.Background(), primitives.NewEvent("a")))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, primitives.NewEvent("b")), context.DeadlineExceeded)

	evt := <-s.Events()
	assert.Equal(t, "a", evt.Name)
	s.Close()
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestTimerEventSource(t *testing.T) {
	s := NewTimerEventSource("tick", "data", 20*time.Millisecond)
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case ev := <-s.Events():
			assert.Equal(t, "tick", ev.Name)
			assert.Equal(t, "data", ev.Data)
		case <-time.After(time.Second):
			t.Fatalf("no event %d received", i)
		}
	}
}

func TestTimerEventSource_Stop(t *testing.T) {
	s := NewTimerEventSource("tick", nil, 5*time.Millisecond)
	s.Stop()
	s.Stop()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-s.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

const toggle = `
initial_state: A
states:
  - name: A
  - name: B
transitions:
  - from: A
    to: B
    event: TICK
  - from: B
    to: A
    event: TICK
  - from: A
    to: B
    conditions:
      - name: level
        range: [5, 10]
`

func newToggle(t *testing.T, opts ...core.Option) *core.Engine {
	t.Helper()
	cfg, err := config.Parse([]byte(toggle))
	require.NoError(t, err)
	e := core.New(opts...)
	require.NoError(t, e.Init(cfg))
	return e
}

func TestEventSources_FeedEngine(t *testing.T) {
	ch := make(chan *primitives.Event, 4)
	src := NewChannelEventSource(ch)
	timer := NewTimerEventSource("TICK", nil, 10*time.Millisecond)
	defer timer.Stop()

	e := newToggle(t, core.WithEventSource(src), core.WithEventSource(timer))
	require.NoError(t, e.Start())
	defer e.Stop()

	require.NoError(t, src.Send(context.Background(), primitives.NewEvent("TICK")))
	require.Eventually(t, func() bool { return e.Snapshot().Handled >= 3 }, 2*time.Second, time.Millisecond)
}

type setter struct {
	mu     sync.Mutex
	values []int
}

func (s *setter) SetConditionValue(name string, v int) {
	s.mu.Lock()
	s.values = append(s.values, v)
	s.mu.Unlock()
}

func (s *setter) got() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.values...)
}

func TestSampler(t *testing.T) {
	var (
		target setter
		n      int
	)
	read := func(context.Context) (int, error) {
		n++
		if n == 2 {
			return 0, errors.New("sensor offline")
		}
		return n * 10, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSampler(&target, "temp", 5*time.Millisecond, read).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(target.got()) >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []int{10, 30, 40}, target.got()[:3], "failed read skipped")
}

func TestSampler_DrivesEngine(t *testing.T) {
	e := newToggle(t)
	require.NoError(t, e.Start())
	defer e.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewSampler(e, "level", 5*time.Millisecond, func(context.Context) (int, error) { return 7, nil }).Run(ctx)

	require.Eventually(t, func() bool { return e.CurrentState() == "B" }, time.Second, time.Millisecond)
	assert.Equal(t, 7, e.GetConditionValue("level"))
}
