package production

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/primitives"
)

var _ core.Visualizer = (*DefaultVisualizer)(nil)

// DefaultVisualizer renders the state tree as Graphviz DOT. States with
// children become clusters; the current state and its ancestors are filled.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source for the machine.
func (v *DefaultVisualizer) ExportDOT(states []primitives.StateInfo, rules []primitives.TransitionRule, current string) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph FSM {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	children := make(map[string][]primitives.StateInfo)
	known := make(map[string]primitives.StateInfo, len(states))
	for _, s := range states {
		known[s.Name] = s
	}
	var roots []primitives.StateInfo
	for _, s := range states {
		if _, ok := known[s.Parent]; s.Parent == "" || !ok {
			roots = append(roots, s)
			continue
		}
		children[s.Parent] = append(children[s.Parent], s)
	}

	active := activeStates(known, current)
	for _, root := range roots {
		renderState(&buf, root, children, active, current, "  ")
	}
	for _, rule := range rules {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", rule.From, rule.To, edgeLabel(rule))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// activeStates marks current and every ancestor.
func activeStates(known map[string]primitives.StateInfo, current string) map[string]bool {
	active := make(map[string]bool)
	for name := current; name != "" && !active[name]; {
		s, ok := known[name]
		if !ok {
			break
		}
		active[name] = true
		name = s.Parent
	}
	return active
}

func edgeLabel(rule primitives.TransitionRule) string {
	var parts []string
	for _, name := range rule.EventNames() {
		switch name {
		case primitives.InternalEvent:
		case primitives.StateTimeoutEvent:
			parts = append(parts, "timeout")
		default:
			parts = append(parts, name)
		}
	}
	label := strings.Join(parts, "|")
	if len(rule.Conditions) == 0 {
		return label
	}
	conds := make([]string, 0, len(rule.Conditions))
	for _, c := range rule.Conditions {
		conds = append(conds, c.String())
	}
	sep := " " + strings.ToLower(string(rule.Operator.Normalize())) + " "
	guard := "[" + strings.Join(conds, sep) + "]"
	if label == "" {
		return guard
	}
	return label + " " + guard
}

func renderState(buf *bytes.Buffer, state primitives.StateInfo, children map[string][]primitives.StateInfo, active map[string]bool, current, indent string) {
	label := state.Name
	if state.Timeout > 0 {
		label = fmt.Sprintf("%s (%s)", state.Name, state.Timeout)
	}
	kids := children[state.Name]
	if len(kids) == 0 {
		style := ""
		if state.Name == current {
			style = " style=\"rounded,filled\" fillcolor=lightgreen"
		}
		fmt.Fprintf(buf, "%s%q [label=%q%s];\n", indent, state.Name, label, style)
		return
	}

	fmt.Fprintf(buf, "%ssubgraph %q {\n", indent, "cluster_"+state.Name)
	style := ""
	if active[state.Name] {
		style = " style=filled fillcolor=orange"
	}
	fmt.Fprintf(buf, "%s  label=%q;\n", indent, label)
	if active[state.Name] {
		fmt.Fprintf(buf, "%s  style=filled; fillcolor=lightyellow;\n", indent)
	}
	fmt.Fprintf(buf, "%s  %q [label=%q shape=ellipse%s];\n", indent, state.Name, label, style)
	for _, child := range kids {
		renderState(buf, child, children, active, current, indent+"  ")
	}
	fmt.Fprintf(buf, "%s}\n", indent)
}
