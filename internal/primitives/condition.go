package primitives

import (
	"fmt"
	"strings"
	"time"
)

// Range is an inclusive [Min, Max] interval of condition values.
type Range struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the range, bounds included.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// Condition is a named predicate over one process-wide integer value.
// Multiple ranges model "multi-range" conditions: [10,20] OR [30,40] counts
// as a single condition match.
type Condition struct {
	Name     string        `json:"name" yaml:"name"`
	Ranges   []Range       `json:"range" yaml:"range"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"` // hold time, 0 = immediate
}

// InRange reports whether v falls in any of the condition's ranges.
func (c Condition) InRange(v int) bool {
	for _, r := range c.Ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// String renders the condition as "name in [a,b]|[c,d] for 500ms".
func (c Condition) String() string {
	ranges := make([]string, len(c.Ranges))
	for i, r := range c.Ranges {
		ranges[i] = r.String()
	}
	s := c.Name + " in " + strings.Join(ranges, "|")
	if c.Duration > 0 {
		s += " for " + c.Duration.String()
	}
	return s
}

// Validate checks the condition name, duration, and every sub-range.
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: condition name is required", ErrInvalidConfig)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: condition %s has negative duration %v", ErrInvalidConfig, c.Name, c.Duration)
	}
	if len(c.Ranges) == 0 {
		return fmt.Errorf("%w: condition %s requires at least one range", ErrInvalidConfig, c.Name)
	}
	for i, r := range c.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("%w: condition %s sub-range #%d %v has min greater than max", ErrInvalidConfig, c.Name, i, r)
		}
	}
	return nil
}

// ConditionInfo is a snapshot of a condition at evaluation time, attached to
// events for downstream diagnostic or business use.
type ConditionInfo struct {
	Name     string        `json:"name" yaml:"name"`
	Value    int           `json:"value" yaml:"value"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"` // held for, when duration-gated
}

// Operator combines a list of conditions.
type Operator string

const (
	And Operator = "AND" // all conditions must hold
	Or  Operator = "OR"  // at least one condition holds
)

// Normalize upper-cases the operator and maps the empty operator to And.
func (o Operator) Normalize() Operator {
	if o == "" {
		return And
	}
	return Operator(strings.ToUpper(string(o)))
}

// Validate rejects anything but AND / OR (after normalization).
func (o Operator) Validate() error {
	switch o.Normalize() {
	case And, Or:
		return nil
	default:
		return fmt.Errorf("%w: invalid conditions operator %q", ErrInvalidConfig, string(o))
	}
}

func validateConditions(owner string, conds []Condition) error {
	for i, c := range conds {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%s condition %d: %w", owner, i, err)
		}
	}
	return nil
}
