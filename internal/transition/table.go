// Package transition stores transition rules keyed by source state and
// trigger event.
//
// Lookups are exact: walking up the state hierarchy is the dispatcher's job.
package transition

import (
	"fmt"
	"sync"

	"github.com/comalice/ctlfsm/internal/primitives"
)

type key struct {
	state string
	event string
}

// Table is a read-mostly multimap from (state, event) to rules in insertion
// order.
type Table struct {
	mu      sync.RWMutex
	rules   map[key][]primitives.TransitionRule
	all     []primitives.TransitionRule
	running bool
}

// New returns an empty Table.
func New() *Table {
	return &Table{rules: make(map[key][]primitives.TransitionRule)}
}

// Add inserts rule once per trigger event. Rejected while running.
func (t *Table) Add(rule primitives.TransitionRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Operator = rule.Operator.Normalize()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("transition: add %v: %w", rule, primitives.ErrRunning)
	}
	for _, event := range rule.EventNames() {
		k := key{state: rule.From, event: event}
		t.rules[k] = append(t.rules[k], rule)
	}
	t.all = append(t.all, rule)
	return nil
}

// Find returns the rules registered for exactly (state, event).
func (t *Table) Find(state, event string) []primitives.TransitionRule {
	if event == "" {
		event = primitives.InternalEvent
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rules := t.rules[key{state: state, event: event}]
	if len(rules) == 0 {
		return nil
	}
	return append([]primitives.TransitionRule(nil), rules...)
}

// Rules returns every added rule in insertion order.
func (t *Table) Rules() []primitives.TransitionRule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]primitives.TransitionRule(nil), t.all...)
}

// Len returns the number of (state, event) entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rules := range t.rules {
		n += len(rules)
	}
	return n
}

// Clear removes every rule. Rejected while running.
func (t *Table) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("transition: clear: %w", primitives.ErrRunning)
	}
	t.rules = make(map[key][]primitives.TransitionRule)
	t.all = nil
	return nil
}

// Freeze rejects further mutation.
func (t *Table) Freeze() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
}
