package config

import (
	"strings"
	"time"

	"github.com/comalice/ctlfsm/internal/primitives"
)

// Builder assembles a Config through a fluent API. Dot notation in state
// names declares the hierarchy: "ON.HEATING" is HEATING with parent ON, and
// missing parents are created on the way.
type Builder struct {
	cfg   Config
	index map[string]int
}

// StateBuilder configures one state and the rules leaving it.
type StateBuilder struct {
	b    *Builder
	name string
}

// NewBuilder creates a builder whose machine starts in initial. initial may
// be a dotted path.
func NewBuilder(initial string) *Builder {
	_, name := splitPath(initial)
	return &Builder{
		cfg:   Config{InitialState: name},
		index: make(map[string]int),
	}
}

// Version sets the config version reported as its fingerprint.
func (b *Builder) Version(v string) *Builder {
	b.cfg.Version = v
	return b
}

// State creates or retrieves a state by path.
func (b *Builder) State(path string) *StateBuilder {
	parentPath, name := splitPath(path)
	parent := ""
	if parentPath != "" {
		parent = b.State(parentPath).name
	}
	if _, ok := b.index[name]; !ok {
		b.index[name] = len(b.cfg.States)
		b.cfg.States = append(b.cfg.States, primitives.StateInfo{Name: name, Parent: parent})
	}
	return &StateBuilder{b: b, name: name}
}

// Event registers a synthesized event over conds.
func (b *Builder) Event(name string, mode primitives.TriggerMode, conds ...primitives.Condition) *Builder {
	b.cfg.Events = append(b.cfg.Events, primitives.EventDefinition{Name: name, Mode: mode, Conditions: conds})
	return b
}

// Build validates and returns the assembled Config.
func (b *Builder) Build() (*Config, error) {
	c := b.cfg
	c.States = append([]primitives.StateInfo(nil), b.cfg.States...)
	c.Events = append([]primitives.EventDefinition(nil), b.cfg.Events...)
	c.Transitions = append([]primitives.TransitionRule(nil), b.cfg.Transitions...)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Name returns the state's own name.
func (sb *StateBuilder) Name() string { return sb.name }

// Timeout arms the state's watchdog.
func (sb *StateBuilder) Timeout(d time.Duration) *StateBuilder {
	sb.b.cfg.States[sb.b.index[sb.name]].Timeout = d
	return sb
}

// On adds a rule to target taken on event when all conds hold. An empty
// event makes a condition-only rule.
func (sb *StateBuilder) On(event, target string, conds ...primitives.Condition) *StateBuilder {
	return sb.rule(event, target, primitives.And, conds)
}

// OnAny is On with the conditions combined by OR.
func (sb *StateBuilder) OnAny(event, target string, conds ...primitives.Condition) *StateBuilder {
	return sb.rule(event, target, primitives.Or, conds)
}

// OnTimeout adds a rule to target taken when the state's watchdog fires.
func (sb *StateBuilder) OnTimeout(target string) *StateBuilder {
	return sb.rule(primitives.StateTimeoutEvent, target, primitives.And, nil)
}

func (sb *StateBuilder) rule(event, target string, op primitives.Operator, conds []primitives.Condition) *StateBuilder {
	_, to := splitPath(target)
	rule := primitives.TransitionRule{From: sb.name, To: to, Operator: op, Conditions: conds}
	if event != "" {
		rule.Events = []string{event}
	}
	sb.b.cfg.Transitions = append(sb.b.cfg.Transitions, rule)
	return sb
}

// Between returns a condition holding while name is in [min, max].
func Between(name string, min, max int) primitives.Condition {
	return primitives.Condition{Name: name, Ranges: []primitives.Range{{Min: min, Max: max}}}
}

// Hold returns c gated on the value staying in range for d.
func Hold(c primitives.Condition, d time.Duration) primitives.Condition {
	c.Duration = d
	return c
}

func splitPath(path string) (parent, name string) {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
