package core

import (
	"context"
	"time"

	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
)

// Publisher receives a record of every committed transition. Publish runs on
// the dispatch goroutine and must not block.
type Publisher interface {
	Publish(ctx context.Context, record TransitionRecord) error
}

// EventSource feeds events into a running engine until its channel closes.
type EventSource interface {
	Events() <-chan *primitives.Event
}

// Visualizer renders the machine structure with the current state marked.
type Visualizer interface {
	ExportDOT(states []primitives.StateInfo, rules []primitives.TransitionRule, current string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithName sets the machine name used in logs and transition records.
func WithName(name string) Option {
	return func(e *Engine) {
		e.name = name
	}
}

// WithLogger sets the logger shared by the engine and its components.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPublisher adds a transition publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publishers = append(e.publishers, p)
	}
}

// WithEventSource adds a source drained into HandleEvent while running.
func WithEventSource(s EventSource) Option {
	return func(e *Engine) {
		e.sources = append(e.sources, s)
	}
}

// WithVisualizer sets the renderer used by Visualize.
func WithVisualizer(v Visualizer) Option {
	return func(e *Engine) {
		e.visualizer = v
	}
}

// WithClock sets the time source for transition records and snapshots.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
