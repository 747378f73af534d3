// Package ctlfsm is a hierarchical finite state machine runtime for
// control applications. Transitions are driven by named events and by
// integer condition values, optionally required to hold for a duration.
//
// A minimal machine:
//
//	cfg, err := ctlfsm.LoadConfig("config/")
//	if err != nil {
//		return err
//	}
//	m, err := ctlfsm.NewConfigured(cfg, ctlfsm.WithName("heater"))
//	if err != nil {
//		return err
//	}
//	defer m.Stop()
//	if err := m.Start(); err != nil {
//		return err
//	}
//	m.SetConditionValue("temp", 42)
package ctlfsm

import (
	"time"

	"github.com/comalice/ctlfsm/internal/config"
	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/primitives"
)

type (
	Engine           = core.Engine
	Registry         = core.Registry
	Option           = core.Option
	Handler          = core.Handler
	Lifecycle        = core.Lifecycle
	TransitionRecord = core.TransitionRecord
	Snapshot         = core.Snapshot
	Publisher        = core.Publisher
	EventSource      = core.EventSource
	Visualizer       = core.Visualizer

	Event           = primitives.Event
	StateInfo       = primitives.StateInfo
	TransitionRule  = primitives.TransitionRule
	EventDefinition = primitives.EventDefinition
	Condition       = primitives.Condition
	ConditionInfo   = primitives.ConditionInfo
	Range           = primitives.Range
	Operator        = primitives.Operator
	TriggerMode     = primitives.TriggerMode

	Config       = config.Config
	Source       = config.Source
	Registrar    = config.Registrar
	Builder      = config.Builder
	StateBuilder = config.StateBuilder
)

const (
	And   = primitives.And
	Or    = primitives.Or
	Edge  = primitives.Edge
	Level = primitives.Level

	InternalEvent     = primitives.InternalEvent
	StateTimeoutEvent = primitives.StateTimeoutEvent

	Uninitialized = core.Uninitialized
	Initialized   = core.Initialized
	Running       = core.Running
	Stopped       = core.Stopped
)

var (
	ErrInvalidArgument    = primitives.ErrInvalidArgument
	ErrInvalidConfig      = primitives.ErrInvalidConfig
	ErrRunning            = core.ErrRunning
	ErrStopped            = core.ErrStopped
	ErrNotInitialized     = core.ErrNotInitialized
	ErrAlreadyInitialized = core.ErrAlreadyInitialized
	ErrNotFound           = core.ErrNotFound
)

var (
	WithName        = core.WithName
	WithLogger      = core.WithLogger
	WithPublisher   = core.WithPublisher
	WithEventSource = core.WithEventSource
	WithVisualizer  = core.WithVisualizer
	WithClock       = core.WithClock
)

// New returns an uninitialized engine.
func New(opts ...Option) *Engine { return core.New(opts...) }

// NewConfigured returns an engine initialized from src, ready to Start.
func NewConfigured(src Source, opts ...Option) (*Engine, error) {
	e := core.New(opts...)
	if err := e.Init(src); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRegistry returns an empty registry; opts apply to every engine it creates.
var NewRegistry = core.NewRegistry

// NewEvent returns an event named name.
func NewEvent(name string) *Event { return primitives.NewEvent(name) }

// NewEventWithData returns an event named name carrying data.
func NewEventWithData(name string, data any) *Event { return primitives.NewEventWithData(name, data) }

// LoadConfig reads a configuration directory, or a single state file next
// to its event and transition directories.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewBuilder starts a programmatic configuration whose machine starts in
// initial.
func NewBuilder(initial string) *Builder { return config.NewBuilder(initial) }

// Between returns a condition holding while name is in [min, max].
func Between(name string, min, max int) Condition { return config.Between(name, min, max) }

// Hold returns c gated on the value staying in range for d.
func Hold(c Condition, d time.Duration) Condition { return config.Hold(c, d) }

// ParseConfig decodes a single combined JSON or YAML document.
func ParseConfig(data []byte) (*Config, error) { return config.Parse(data) }
