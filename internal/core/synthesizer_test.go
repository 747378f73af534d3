package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/ctlfsm/internal/condition"
	"github.com/comalice/ctlfsm/internal/primitives"
)

type emitted struct {
	mu     sync.Mutex
	events []*primitives.Event
}

func (e *emitted) emit(evt *primitives.Event) {
	e.mu.Lock()
	e.events = append(e.events, evt)
	e.mu.Unlock()
}

func (e *emitted) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Name)
	}
	return out
}

func newTestSynth(t *testing.T, defs ...primitives.EventDefinition) (*condition.Store, *Synthesizer, *emitted) {
	t.Helper()
	store := condition.New()
	out := &emitted{}
	s := newSynthesizer(store, out.emit, nil, nil)
	for _, def := range defs {
		for _, c := range def.Conditions {
			require.NoError(t, store.AddCondition(c))
		}
		require.NoError(t, s.Add(def))
	}
	require.NoError(t, store.OnChange(s.OnChange))
	require.NoError(t, store.Start())
	t.Cleanup(store.Stop)
	return store, s, out
}

func waitNames(t *testing.T, out *emitted, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(out.names()) >= n }, 2*time.Second, time.Millisecond)
	return out.names()
}

func TestSynthesizer_Add(t *testing.T) {
	store := condition.New()
	s := newSynthesizer(store, func(*primitives.Event) {}, nil, nil)

	def := primitives.EventDefinition{
		Name:       "HOT",
		Conditions: []primitives.Condition{{Name: "temp", Ranges: []primitives.Range{{Min: 40, Max: 100}}}},
	}
	require.NoError(t, s.Add(def))
	assert.ErrorIs(t, s.Add(def), primitives.ErrInvalidArgument)
	assert.ErrorIs(t, s.Add(primitives.EventDefinition{}), primitives.ErrInvalidConfig)

	defs := s.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, primitives.Edge, defs[0].Mode, "mode defaults to edge")
	assert.Equal(t, primitives.And, defs[0].Operator)

	assert.Contains(t, store.Names(), "HOT", "flag declared")
}

func TestSynthesizer_Operators(t *testing.T) {
	both := primitives.EventDefinition{
		Name: "BOTH",
		Conditions: []primitives.Condition{
			{Name: "a", Ranges: []primitives.Range{{Min: 1, Max: 1}}},
			{Name: "b", Ranges: []primitives.Range{{Min: 1, Max: 1}}},
		},
	}
	either := primitives.EventDefinition{
		Name:       "EITHER",
		Operator:   primitives.Or,
		Conditions: both.Conditions,
	}
	store, _, out := newTestSynth(t, both, either)

	store.SetValue("a", 1)
	names := waitNames(t, out, 2)
	assert.Equal(t, []string{"EITHER", primitives.InternalEvent}, names)

	store.SetValue("b", 1)
	names = waitNames(t, out, 4)
	assert.Equal(t, []string{"BOTH", primitives.InternalEvent}, names[2:])

	store.SetValue("a", 0)
	names = waitNames(t, out, 6)
	assert.Equal(t, []string{"BOTH_RESET", primitives.InternalEvent}, names[4:])
}

func TestSynthesizer_InternalEventCarriesChange(t *testing.T) {
	def := primitives.EventDefinition{
		Name:       "X",
		Conditions: []primitives.Condition{{Name: "v", Ranges: []primitives.Range{{Min: 100, Max: 200}}}},
	}
	store, _, out := newTestSynth(t, def)

	store.SetValue("v", 7)
	waitNames(t, out, 1)
	out.mu.Lock()
	evt := out.events[0]
	out.mu.Unlock()
	assert.Equal(t, primitives.InternalEvent, evt.Name)
	assert.Equal(t, 7, evt.ConditionValue("v"))
}

func TestSynthesizer_UnchangedValueIsSilent(t *testing.T) {
	def := primitives.EventDefinition{
		Name:       "X",
		Mode:       primitives.Level,
		Conditions: []primitives.Condition{{Name: "v", Ranges: []primitives.Range{{Min: 1, Max: 5}}}},
	}
	store, _, out := newTestSynth(t, def)

	store.SetValue("v", 3)
	waitNames(t, out, 2)
	store.SetValue("v", 3)
	store.SetValue("v", 4)
	names := waitNames(t, out, 4)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"X", primitives.InternalEvent, "X", primitives.InternalEvent}, names)
}
