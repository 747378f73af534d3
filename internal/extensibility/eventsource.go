// Package extensibility provides inputs that feed a running engine from
// outside: event sources drained into HandleEvent and samplers that poll a
// reading into a condition value.
package extensibility

import (
	"context"
	"sync"
	"time"

	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/primitives"
)

var (
	_ core.EventSource = (*ChannelEventSource)(nil)
	_ core.EventSource = (*TimerEventSource)(nil)
)

// ChannelEventSource is an EventSource backed by a Go channel.
type ChannelEventSource struct {
	ch chan *primitives.Event
}

// NewChannelEventSource creates a ChannelEventSource over ch. The channel
// should be buffered if producers must not wait on dispatch.
func NewChannelEventSource(ch chan *primitives.Event) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// Events returns the receive side of the channel.
func (s *ChannelEventSource) Events() <-chan *primitives.Event {
	return s.ch
}

// Send delivers evt, blocking until it is accepted or ctx is done.
func (s *ChannelEventSource) Send(ctx context.Context, evt *primitives.Event) error {
	select {
	case s.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel, which ends the engine's drain of this source.
func (s *ChannelEventSource) Close() {
	close(s.ch)
}

// TimerEventSource emits an event named name every period. Ticks are
// dropped while the buffer is full.
type TimerEventSource struct {
	ch     chan *primitives.Event
	name   string
	data   any
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

// NewTimerEventSource creates a TimerEventSource that starts ticking
// immediately.
func NewTimerEventSource(name string, data any, period time.Duration) *TimerEventSource {
	t := &TimerEventSource{
		ch:     make(chan *primitives.Event, 10),
		name:   name,
		data:   data,
		ticker: time.NewTicker(period),
		stop:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TimerEventSource) run() {
	for {
		select {
		case <-t.ticker.C:
			select {
			case t.ch <- primitives.NewEventWithData(t.name, t.data):
			default:
			}
		case <-t.stop:
			t.ticker.Stop()
			close(t.ch)
			return
		}
	}
}

// Events returns the event channel. It is closed after Stop.
func (t *TimerEventSource) Events() <-chan *primitives.Event {
	return t.ch
}

// Stop stops the ticker and closes the channel. Safe to call repeatedly.
func (t *TimerEventSource) Stop() {
	t.once.Do(func() { close(t.stop) })
}
