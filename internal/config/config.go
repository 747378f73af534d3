// Package config loads machine descriptions (states, event definitions and
// transition rules) from YAML or JSON documents and applies them to an
// engine through the Registrar interface.
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/comalice/ctlfsm/internal/primitives"
)

// Registrar receives a validated description. The engine implements it.
type Registrar interface {
	AddState(info primitives.StateInfo) error
	AddEventDefinition(def primitives.EventDefinition) error
	AddTransition(rule primitives.TransitionRule) error
	SetInitialState(name string) error
}

// Source is anything that can populate a Registrar.
type Source interface {
	Apply(r Registrar) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(r Registrar) error

func (f SourceFunc) Apply(r Registrar) error { return f(r) }

// Config is a complete machine description.
type Config struct {
	Version      string                       `json:"version,omitempty" yaml:"version,omitempty"`
	InitialState string                       `json:"initial_state" yaml:"initial_state"`
	States       []primitives.StateInfo       `json:"states" yaml:"states"`
	Events       []primitives.EventDefinition `json:"events,omitempty" yaml:"events,omitempty"`
	Transitions  []primitives.TransitionRule  `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// Validate checks the whole description without side effects.
func (c *Config) Validate() error {
	if len(c.States) == 0 {
		return fmt.Errorf("%w: no states defined", primitives.ErrInvalidConfig)
	}
	declared := make(map[string]struct{}, len(c.States))
	for i, s := range c.States {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("state #%d: %w", i, err)
		}
		if _, dup := declared[s.Name]; dup {
			return fmt.Errorf("%w: duplicate state %s", primitives.ErrInvalidConfig, s.Name)
		}
		if s.Parent != "" {
			if _, ok := declared[s.Parent]; !ok {
				return fmt.Errorf("%w: state %s: parent %s must be declared before it", primitives.ErrInvalidConfig, s.Name, s.Parent)
			}
		}
		declared[s.Name] = struct{}{}
	}
	if c.InitialState == "" {
		return fmt.Errorf("%w: initial_state is required", primitives.ErrInvalidConfig)
	}
	if _, ok := declared[c.InitialState]; !ok {
		return fmt.Errorf("%w: initial_state %s is not a declared state", primitives.ErrInvalidConfig, c.InitialState)
	}

	events := make(map[string]struct{}, len(c.Events))
	for _, e := range c.Events {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, dup := events[e.Name]; dup {
			return fmt.Errorf("%w: duplicate event definition %s", primitives.ErrInvalidConfig, e.Name)
		}
		events[e.Name] = struct{}{}
	}

	for _, t := range c.Transitions {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, ok := declared[t.From]; !ok {
			return fmt.Errorf("%w: transition %s: unknown from state", primitives.ErrInvalidConfig, t)
		}
		if _, ok := declared[t.To]; !ok {
			return fmt.Errorf("%w: transition %s: unknown to state %s", primitives.ErrInvalidConfig, t, t.To)
		}
	}
	return nil
}

// Apply validates the description, then registers states, event
// definitions, transitions and finally the initial state.
func (c *Config) Apply(r Registrar) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, s := range c.States {
		if err := r.AddState(s); err != nil {
			return fmt.Errorf("add state %s: %w", s.Name, err)
		}
	}
	for _, e := range c.Events {
		if err := r.AddEventDefinition(e); err != nil {
			return fmt.Errorf("add event %s: %w", e.Name, err)
		}
	}
	for _, t := range c.Transitions {
		if err := r.AddTransition(t); err != nil {
			return fmt.Errorf("add transition %s: %w", t, err)
		}
	}
	if err := r.SetInitialState(c.InitialState); err != nil {
		return fmt.Errorf("set initial state %s: %w", c.InitialState, err)
	}
	return nil
}

// Fingerprint returns Version if set, else a short hash of the description.
func (c *Config) Fingerprint() string {
	if c.Version != "" {
		return c.Version
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "invalid"
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash[:8])
}
