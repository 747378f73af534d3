package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/ctlfsm/internal/primitives"
)

const combined = `
initial_state: OFF
states:
  - name: ROOT
  - name: OFF
    parent: ROOT
  - name: ON
    parent: ROOT
    timeout: 1500
events:
  - name: HOT
    trigger_mode: level
    conditions_operator: or
    conditions:
      - name: temp
        range: [[10, 20], [30, 40]]
        duration: 500
transitions:
  - from: OFF
    to: ON
    event: TURN_ON
  - from: ON
    to: OFF
    event: [TURN_OFF, HOT]
    conditions:
      - name: temp
        range: [0, 5]
  - from: ON
    to: OFF
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(combined))
	require.NoError(t, err)

	assert.Equal(t, "OFF", c.InitialState)
	require.Len(t, c.States, 3)
	assert.Equal(t, primitives.StateInfo{Name: "ON", Parent: "ROOT", Timeout: 1500 * time.Millisecond}, c.States[2])

	require.Len(t, c.Events, 1)
	hot := c.Events[0]
	assert.Equal(t, primitives.Level, hot.TriggerMode())
	assert.Equal(t, primitives.Or, hot.Operator.Normalize())
	require.Len(t, hot.Conditions, 1)
	assert.Equal(t, []primitives.Range{{Min: 10, Max: 20}, {Min: 30, Max: 40}}, hot.Conditions[0].Ranges)
	assert.Equal(t, 500*time.Millisecond, hot.Conditions[0].Duration)

	require.Len(t, c.Transitions, 3)
	assert.Equal(t, []string{"TURN_ON"}, c.Transitions[0].Events)
	assert.Equal(t, []string{"TURN_OFF", "HOT"}, c.Transitions[1].Events)
	assert.Equal(t, []primitives.Range{{Min: 0, Max: 5}}, c.Transitions[1].Conditions[0].Ranges)
	assert.Equal(t, []string{primitives.InternalEvent}, c.Transitions[2].EventNames())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "syntax", doc: "states: [\n"},
		{name: "no states", doc: "initial_state: A\n"},
		{name: "missing initial", doc: "states: [{name: A}]\n"},
		{name: "unknown initial", doc: "initial_state: B\nstates: [{name: A}]\n"},
		{name: "parent after child", doc: "initial_state: A\nstates: [{name: A, parent: B}, {name: B}]\n"},
		{name: "duplicate state", doc: "initial_state: A\nstates: [{name: A}, {name: A}]\n"},
		{name: "negative timeout", doc: "initial_state: A\nstates: [{name: A, timeout: -1}]\n"},
		{name: "unknown target", doc: "initial_state: A\nstates: [{name: A}]\ntransitions: [{from: A, to: B}]\n"},
		{name: "min above max", doc: "initial_state: A\nstates: [{name: A}]\ntransitions: [{from: A, to: A, conditions: [{name: c, range: [5, 1]}]}]\n"},
		{name: "bad sub-range", doc: "initial_state: A\nstates: [{name: A}]\ntransitions: [{from: A, to: A, conditions: [{name: c, range: [[1, 2], 3]}]}]\n"},
		{name: "missing range", doc: "initial_state: A\nstates: [{name: A}]\ntransitions: [{from: A, to: A, conditions: [{name: c}]}]\n"},
		{name: "negative duration", doc: "initial_state: A\nstates: [{name: A}]\nevents: [{name: E, conditions: [{name: c, range: [1, 2], duration: -5}]}]\n"},
		{name: "bad mode", doc: "initial_state: A\nstates: [{name: A}]\nevents: [{name: E, trigger_mode: pulse}]\n"},
		{name: "bad operator", doc: "initial_state: A\nstates: [{name: A}]\ntransitions: [{from: A, to: A, conditions_operator: XOR}]\n"},
		{name: "event map", doc: "initial_state: A\nstates: [{name: A}]\ntransitions: [{from: A, to: A, event: {x: 1}}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, primitives.ErrInvalidConfig)
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "state_config.json"), `{
		"initial_state": "IDLE",
		"states": [{"name": "IDLE"}, {"name": "HEATING", "timeout": 2000}]
	}`)
	writeFile(t, filepath.Join(dir, EventDir, "cold.json"), `{
		"name": "COLD",
		"conditions": [{"name": "temp", "range": [0, 40]}]
	}`)
	writeFile(t, filepath.Join(dir, EventDir, "README.txt"), "ignored")
	writeFile(t, filepath.Join(dir, TransitionDir, "b_stop.yaml"), "from: HEATING\nto: IDLE\nevent: COLD_RESET\n")
	writeFile(t, filepath.Join(dir, TransitionDir, "a_start.json"), `{"from": "IDLE", "to": "HEATING", "event": "COLD"}`)

	c, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", c.InitialState)
	assert.Len(t, c.States, 2)
	require.Len(t, c.Events, 1)
	assert.Equal(t, primitives.Edge, c.Events[0].TriggerMode())
	require.Len(t, c.Transitions, 2)
	assert.Equal(t, "IDLE", c.Transitions[0].From, "documents load in file name order")
	assert.Equal(t, "HEATING", c.Transitions[1].From)

	viaFile, err := Load(filepath.Join(dir, "state_config.json"))
	require.NoError(t, err)
	assert.Equal(t, c, viaFile)

	viaDir, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, c.Fingerprint(), viaDir.Fingerprint())
}

func TestLoadDir_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := t.TempDir()
	_, err = LoadDir(empty)
	assert.ErrorIs(t, err, primitives.ErrInvalidConfig)

	noTrans := t.TempDir()
	writeFile(t, filepath.Join(noTrans, "state_config.yml"), "initial_state: A\nstates: [{name: A}]\n")
	_, err = LoadDir(noTrans)
	assert.ErrorIs(t, err, primitives.ErrInvalidConfig)
}

type recorder struct {
	calls []string
	fail  string
}

func (r *recorder) AddState(info primitives.StateInfo) error {
	r.calls = append(r.calls, "state:"+info.Name)
	return nil
}

func (r *recorder) AddEventDefinition(def primitives.EventDefinition) error {
	r.calls = append(r.calls, "event:"+def.Name)
	return nil
}

func (r *recorder) AddTransition(rule primitives.TransitionRule) error {
	r.calls = append(r.calls, "transition:"+rule.From+">"+rule.To)
	if r.fail == rule.From {
		return primitives.ErrInvalidArgument
	}
	return nil
}

func (r *recorder) SetInitialState(name string) error {
	r.calls = append(r.calls, "initial:"+name)
	return nil
}

func TestApply(t *testing.T) {
	c, err := Parse([]byte(combined))
	require.NoError(t, err)

	r := &recorder{}
	require.NoError(t, c.Apply(r))
	assert.Equal(t, []string{
		"state:ROOT", "state:OFF", "state:ON",
		"event:HOT",
		"transition:OFF>ON", "transition:ON>OFF", "transition:ON>OFF",
		"initial:OFF",
	}, r.calls)

	r = &recorder{fail: "OFF"}
	err = c.Apply(r)
	assert.ErrorIs(t, err, primitives.ErrInvalidArgument)
	assert.NotContains(t, r.calls, "initial:OFF")
}

func TestApply_ValidatesFirst(t *testing.T) {
	c := &Config{InitialState: "X", States: []primitives.StateInfo{{Name: "A"}}}
	r := &recorder{}
	assert.ErrorIs(t, c.Apply(r), primitives.ErrInvalidConfig)
	assert.Empty(t, r.calls)
}

func TestSourceFunc(t *testing.T) {
	called := false
	var src Source = SourceFunc(func(r Registrar) error {
		called = true
		return r.SetInitialState("A")
	})
	require.NoError(t, src.Apply(&recorder{}))
	assert.True(t, called)
}

func TestFingerprint(t *testing.T) {
	a, err := Parse([]byte(combined))
	require.NoError(t, err)
	b, err := Parse([]byte(combined))
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	b.InitialState = "ON"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	b.Version = "v2"
	assert.Equal(t, "v2", b.Fingerprint())
}
