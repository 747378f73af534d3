package primitives

import (
	"fmt"
	"strings"
)

// TriggerMode selects when a synthesized event fires.
type TriggerMode string

const (
	// Edge fires only when the conditions go from not matching to matching,
	// and emits the <name>_RESET event when they stop matching.
	Edge TriggerMode = "edge"
	// Level fires on every re-check while the conditions match.
	Level TriggerMode = "level"
)

// ResetSuffix is appended to an edge definition's name for its reset event.
const ResetSuffix = "_RESET"

// EventDefinition synthesizes the event Name from condition changes.
type EventDefinition struct {
	Name       string      `json:"name" yaml:"name"`
	Mode       TriggerMode `json:"trigger_mode,omitempty" yaml:"trigger_mode,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Operator   Operator    `json:"conditions_operator,omitempty" yaml:"conditions_operator,omitempty"`
}

// TriggerMode returns the configured mode, defaulting to Edge.
func (d EventDefinition) TriggerMode() TriggerMode {
	if d.Mode == "" {
		return Edge
	}
	return TriggerMode(strings.ToLower(string(d.Mode)))
}

// ResetName is the name of the event emitted when an edge definition stops
// matching.
func (d EventDefinition) ResetName() string {
	return d.Name + ResetSuffix
}

// Validate checks the definition name, mode, operator and conditions.
func (d EventDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: event definition name is required", ErrInvalidConfig)
	}
	switch d.TriggerMode() {
	case Edge, Level:
	default:
		return fmt.Errorf("%w: event %s: invalid trigger_mode %q", ErrInvalidConfig, d.Name, string(d.Mode))
	}
	if err := d.Operator.Validate(); err != nil {
		return fmt.Errorf("event %s: %w", d.Name, err)
	}
	return validateConditions("event "+d.Name, d.Conditions)
}
