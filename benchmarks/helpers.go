// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"

	"github.com/comalice/ctlfsm/internal/config"
	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/primitives"
)

// GenFlatConfig creates a flat machine with n states cycling via "tick" events.
func GenFlatConfig(n int) *config.Config {
	if n < 1 {
		n = 1
	}
	c := &config.Config{Version: fmt.Sprintf("flat_%d", n), InitialState: "s0"}
	for i := 0; i < n; i++ {
		c.States = append(c.States, primitives.StateInfo{Name: fmt.Sprintf("s%d", i)})
		c.Transitions = append(c.Transitions, primitives.TransitionRule{
			From:   fmt.Sprintf("s%d", i),
			To:     fmt.Sprintf("s%d", (i+1)%n),
			Events: []string{"tick"},
		})
	}
	return c
}

// GenDeepConfig creates a chain of depth nested states with two leaves at
// the bottom. The only rule lives on the root, so every match walks the
// full ancestor chain and every transition exits and enters one leaf.
func GenDeepConfig(depth int) *config.Config {
	if depth < 1 {
		depth = 1
	}
	c := &config.Config{Version: fmt.Sprintf("deep_%d", depth), InitialState: "leaf1"}
	parent := ""
	for i := 0; i < depth; i++ {
		name := fmt.Sprintf("c%d", i)
		c.States = append(c.States, primitives.StateInfo{Name: name, Parent: parent})
		parent = name
	}
	c.States = append(c.States,
		primitives.StateInfo{Name: "leaf1", Parent: parent},
		primitives.StateInfo{Name: "leaf2", Parent: parent},
	)
	c.Transitions = []primitives.TransitionRule{
		{From: "leaf2", To: "leaf1", Events: []string{"tick"}},
		{From: "c0", To: "leaf2", Events: []string{"tick"}},
	}
	return c
}

// GenConditionConfig creates two states toggled by the value of "level"
// crossing n ranges, plus an edge event definition over the same ranges.
func GenConditionConfig(n int) *config.Config {
	if n < 1 {
		n = 1
	}
	ranges := make([]primitives.Range, n)
	for i := range ranges {
		ranges[i] = primitives.Range{Min: i * 10, Max: i*10 + 4}
	}
	cond := []primitives.Condition{{Name: "level", Ranges: ranges}}
	return &config.Config{
		Version:      fmt.Sprintf("cond_%d", n),
		InitialState: "LOW",
		States:       []primitives.StateInfo{{Name: "LOW"}, {Name: "HIGH"}},
		Events:       []primitives.EventDefinition{{Name: "IN_BAND", Conditions: cond}},
		Transitions: []primitives.TransitionRule{
			{From: "LOW", To: "HIGH", Conditions: cond},
			{From: "HIGH", To: "LOW", Events: []string{"IN_BAND_RESET"}},
		},
	}
}

// StartEngine initializes and starts an engine from c.
func StartEngine(c *config.Config, opts ...core.Option) (*core.Engine, error) {
	e := core.New(opts...)
	if err := e.Init(c); err != nil {
		return nil, err
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}
