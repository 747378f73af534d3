// Package production provides integrations around a running engine:
// transition publishers, a SQLite transition journal, DOT rendering and
// YAML snapshot export.
package production

import (
	"context"
	"sync/atomic"

	"github.com/comalice/ctlfsm/internal/core"
)

var _ core.Publisher = (*ChannelPublisher)(nil)

// ChannelPublisher forwards transition records to a Go channel.
// Non-blocking publish with drop on backpressure.
type ChannelPublisher struct {
	ch      chan<- core.TransitionRecord
	dropped atomic.Uint64
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- core.TransitionRecord) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, record core.TransitionRecord) error {
	select {
	case p.ch <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		return nil
	}
}

// Dropped returns how many records were discarded on a full channel.
func (p *ChannelPublisher) Dropped() uint64 { return p.dropped.Load() }

// Close closes the output channel. Publishing after Close panics.
func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}
