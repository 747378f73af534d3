package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/ctlfsm/internal/primitives"
)

const (
	// StateFileBase is the state document name inside a config directory,
	// with any of the supported extensions.
	StateFileBase = "state_config"
	// EventDir holds one event definition document per file.
	EventDir = "event_generate_config"
	// TransitionDir holds one transition rule document per file.
	TransitionDir = "trans_config"
)

var extensions = []string{".json", ".yaml", ".yml"}

// Durations and timeouts are integer milliseconds in documents.

type stateDoc struct {
	Name    string `yaml:"name"`
	Parent  string `yaml:"parent"`
	Timeout int    `yaml:"timeout"`
}

type stateFileDoc struct {
	Version      string     `yaml:"version"`
	InitialState string     `yaml:"initial_state"`
	States       []stateDoc `yaml:"states"`
}

type conditionDoc struct {
	Name     string    `yaml:"name"`
	Duration int       `yaml:"duration"`
	Range    rangeList `yaml:"range"`
}

type eventDoc struct {
	Name       string         `yaml:"name"`
	Mode       string         `yaml:"trigger_mode"`
	Operator   string         `yaml:"conditions_operator"`
	Conditions []conditionDoc `yaml:"conditions"`
}

type transitionDoc struct {
	From       string         `yaml:"from"`
	To         string         `yaml:"to"`
	Event      eventList      `yaml:"event"`
	Operator   string         `yaml:"conditions_operator"`
	Conditions []conditionDoc `yaml:"conditions"`
}

type combinedDoc struct {
	stateFileDoc `yaml:",inline"`
	Events       []eventDoc      `yaml:"events"`
	Transitions  []transitionDoc `yaml:"transitions"`
}

// rangeList accepts [min, max] or [[min1, max1], [min2, max2], ...].
type rangeList []primitives.Range

func (r *rangeList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: range must be a list", primitives.ErrInvalidConfig, value.Line)
	}
	if len(value.Content) == 2 && value.Content[0].Kind == yaml.ScalarNode {
		pair, err := decodePair(value)
		if err != nil {
			return err
		}
		*r = rangeList{pair}
		return nil
	}
	out := make(rangeList, 0, len(value.Content))
	for i, item := range value.Content {
		if item.Kind != yaml.SequenceNode {
			return fmt.Errorf("%w: line %d: sub-range #%d must be [min, max]", primitives.ErrInvalidConfig, item.Line, i)
		}
		pair, err := decodePair(item)
		if err != nil {
			return err
		}
		out = append(out, pair)
	}
	*r = out
	return nil
}

func decodePair(node *yaml.Node) (primitives.Range, error) {
	var pair []int
	if err := node.Decode(&pair); err != nil || len(pair) != 2 {
		return primitives.Range{}, fmt.Errorf("%w: line %d: expected [min, max]", primitives.ErrInvalidConfig, node.Line)
	}
	return primitives.Range{Min: pair[0], Max: pair[1]}, nil
}

// eventList accepts a single event name or a list of names.
type eventList []string

func (e *eventList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		*e = eventList{name}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return fmt.Errorf("%w: line %d: event list must hold strings", primitives.ErrInvalidConfig, value.Line)
		}
		*e = names
		return nil
	default:
		return fmt.Errorf("%w: line %d: event must be a string or a list", primitives.ErrInvalidConfig, value.Line)
	}
}

func (d conditionDoc) condition() primitives.Condition {
	return primitives.Condition{
		Name:     d.Name,
		Ranges:   []primitives.Range(d.Range),
		Duration: time.Duration(d.Duration) * time.Millisecond,
	}
}

func conditions(docs []conditionDoc) []primitives.Condition {
	if len(docs) == 0 {
		return nil
	}
	out := make([]primitives.Condition, len(docs))
	for i, d := range docs {
		out[i] = d.condition()
	}
	return out
}

func (d stateDoc) state() primitives.StateInfo {
	return primitives.StateInfo{
		Name:    d.Name,
		Parent:  d.Parent,
		Timeout: time.Duration(d.Timeout) * time.Millisecond,
	}
}

func (d eventDoc) definition() primitives.EventDefinition {
	return primitives.EventDefinition{
		Name:       d.Name,
		Mode:       primitives.TriggerMode(d.Mode),
		Conditions: conditions(d.Conditions),
		Operator:   primitives.Operator(d.Operator),
	}
}

func (d transitionDoc) rule() primitives.TransitionRule {
	return primitives.TransitionRule{
		From:       d.From,
		To:         d.To,
		Events:     []string(d.Event),
		Conditions: conditions(d.Conditions),
		Operator:   primitives.Operator(d.Operator),
	}
}

func checkMillis(what string, ms int) error {
	if ms < 0 {
		return fmt.Errorf("%w: %s must not be negative (got %d)", primitives.ErrInvalidConfig, what, ms)
	}
	return nil
}

func (d stateFileDoc) apply(c *Config) error {
	c.Version = d.Version
	c.InitialState = d.InitialState
	for _, s := range d.States {
		if err := checkMillis("state "+s.Name+" timeout", s.Timeout); err != nil {
			return err
		}
		c.States = append(c.States, s.state())
	}
	return nil
}

func checkConditionDocs(owner string, docs []conditionDoc) error {
	for _, cd := range docs {
		if err := checkMillis(owner+" condition "+cd.Name+" duration", cd.Duration); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads a single combined document with states, initial_state,
// events and transitions keys.
func Parse(data []byte) (*Config, error) {
	var doc combinedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", primitives.ErrInvalidConfig, err)
	}
	var c Config
	if err := doc.stateFileDoc.apply(&c); err != nil {
		return nil, err
	}
	for _, e := range doc.Events {
		if err := checkConditionDocs("event "+e.Name, e.Conditions); err != nil {
			return nil, err
		}
		c.Events = append(c.Events, e.definition())
	}
	for _, t := range doc.Transitions {
		if err := checkConditionDocs("transition "+t.From+" -> "+t.To, t.Conditions); err != nil {
			return nil, err
		}
		c.Transitions = append(c.Transitions, t.rule())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a configuration directory, or a state document whose sibling
// directories hold the event and transition documents.
func Load(path string) (*Config, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config path %s: %w", path, err)
	}
	if fi.IsDir() {
		return LoadDir(path)
	}
	return load(path, filepath.Dir(path))
}

// LoadDir reads state_config.{json,yaml,yml}, every document in
// event_generate_config/ and every document in trans_config/, in file name
// order. At least one transition document is required.
func LoadDir(dir string) (*Config, error) {
	stateFile, err := findStateFile(dir)
	if err != nil {
		return nil, err
	}
	return load(stateFile, dir)
}

func load(stateFile, dir string) (*Config, error) {
	var c Config

	var sd stateFileDoc
	if err := decodeFile(stateFile, &sd); err != nil {
		return nil, err
	}
	if err := sd.apply(&c); err != nil {
		return nil, fmt.Errorf("%s: %w", stateFile, err)
	}

	eventFiles, err := documents(filepath.Join(dir, EventDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, f := range eventFiles {
		var ed eventDoc
		if err := decodeFile(f, &ed); err != nil {
			return nil, err
		}
		if err := checkConditionDocs("event "+ed.Name, ed.Conditions); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		c.Events = append(c.Events, ed.definition())
	}

	transFiles, err := documents(filepath.Join(dir, TransitionDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if len(transFiles) == 0 {
		return nil, fmt.Errorf("%w: no transition documents in %s", primitives.ErrInvalidConfig, filepath.Join(dir, TransitionDir))
	}
	for _, f := range transFiles {
		var td transitionDoc
		if err := decodeFile(f, &td); err != nil {
			return nil, err
		}
		if err := checkConditionDocs("transition "+td.From+" -> "+td.To, td.Conditions); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		c.Transitions = append(c.Transitions, td.rule())
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func findStateFile(dir string) (string, error) {
	for _, ext := range extensions {
		p := filepath.Join(dir, StateFileBase+ext)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no %s.{json,yaml,yml} in %s", primitives.ErrInvalidConfig, StateFileBase, dir)
}

func documents(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", primitives.ErrInvalidConfig, path, err)
	}
	return nil
}
