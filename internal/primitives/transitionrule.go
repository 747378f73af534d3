package primitives

import (
	"fmt"
	"strings"
)

const (
	// InternalEvent is dispatched on every condition change so that rules
	// without a trigger event get evaluated.
	InternalEvent = "__INTERNAL_EVENT__"

	// StateTimeoutEvent is injected when the current state's inactivity
	// timeout elapses.
	StateTimeoutEvent = "__STATE_TIMEOUT_EVENT__"
)

// TransitionRule moves the machine from From to To when one of Events is
// dispatched and its conditions hold under Operator.
type TransitionRule struct {
	From       string      `json:"from" yaml:"from"`
	To         string      `json:"to" yaml:"to"`
	Events     []string    `json:"event,omitempty" yaml:"event,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Operator   Operator    `json:"conditions_operator,omitempty" yaml:"conditions_operator,omitempty"`
}

// EventNames returns the trigger events with empty names mapped to
// InternalEvent. A rule without events acts on InternalEvent only.
func (r TransitionRule) EventNames() []string {
	if len(r.Events) == 0 {
		return []string{InternalEvent}
	}
	names := make([]string, 0, len(r.Events))
	seen := make(map[string]struct{}, len(r.Events))
	for _, e := range r.Events {
		if strings.TrimSpace(e) == "" {
			e = InternalEvent
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		names = append(names, e)
	}
	return names
}

// Validate checks the rule's own fields. Whether From and To are registered
// is checked by the engine on registration.
func (r TransitionRule) Validate() error {
	if strings.TrimSpace(r.From) == "" {
		return fmt.Errorf("%w: transition 'from' is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(r.To) == "" {
		return fmt.Errorf("%w: transition %s: 'to' is required", ErrInvalidConfig, r.From)
	}
	if err := r.Operator.Validate(); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", r.From, r.To, err)
	}
	return validateConditions(fmt.Sprintf("transition %s -> %s", r.From, r.To), r.Conditions)
}

func (r TransitionRule) String() string {
	return fmt.Sprintf("%s -> %s on %s", r.From, r.To, strings.Join(r.EventNames(), "|"))
}
