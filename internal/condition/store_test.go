package condition

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/ctlfsm/internal/primitives"
)

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) record(ch Change) {
	c.mu.Lock()
	c.changes = append(c.changes, ch)
	c.mu.Unlock()
}

func (c *changeLog) snapshot() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.changes...)
}

func startStore(t *testing.T, conds ...primitives.Condition) (*Store, *changeLog) {
	t.Helper()
	s := New()
	log := &changeLog{}
	require.NoError(t, s.OnChange(log.record))
	for _, c := range conds {
		require.NoError(t, s.AddCondition(c))
	}
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s, log
}

func waitValue(t *testing.T, s *Store, name string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, ok := s.lookup(name)
		return ok && v.Value == want
	}, time.Second, time.Millisecond)
}

func TestStore_SetValueApplied(t *testing.T) {
	s, _ := startStore(t)
	s.SetValue("temp", 42)
	waitValue(t, s, "temp", 42)
	assert.Equal(t, 42, s.GetValue("temp"))
	assert.Equal(t, 0, s.GetValue("never"))
}

func TestStore_AddConditionDeclaresZero(t *testing.T) {
	s := New()
	require.NoError(t, s.AddCondition(primitives.Condition{Name: "door", Ranges: []primitives.Range{{Min: 1, Max: 1}}}))
	v, ok := s.lookup("door")
	require.True(t, ok)
	assert.Equal(t, 0, v.Value)
	assert.Len(t, s.descriptors, 1)
}

func TestStore_AddConditionRejectedWhileRunning(t *testing.T) {
	s, _ := startStore(t)
	err := s.AddCondition(primitives.Condition{Name: "x", Ranges: []primitives.Range{{Min: 0, Max: 1}}})
	assert.ErrorIs(t, err, primitives.ErrRunning)
	assert.ErrorIs(t, s.OnChange(func(Change) {}), primitives.ErrRunning)
}

func TestStore_AddConditionInvalid(t *testing.T) {
	s := New()
	err := s.AddCondition(primitives.Condition{Name: "x", Ranges: []primitives.Range{{Min: 5, Max: 1}}})
	assert.ErrorIs(t, err, primitives.ErrInvalidConfig)
}

func TestStore_CheckConditions(t *testing.T) {
	temp := primitives.Condition{Name: "temp", Ranges: []primitives.Range{{Min: 10, Max: 20}, {Min: 30, Max: 40}}}
	door := primitives.Condition{Name: "door", Ranges: []primitives.Range{{Min: 1, Max: 1}}}
	s, _ := startStore(t, temp, door)

	ok, infos, err := s.CheckConditions(nil, primitives.And)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, infos)

	tests := []struct {
		name  string
		temp  int
		door  int
		op    primitives.Operator
		want  bool
		infos int
	}{
		{name: "and both", temp: 15, door: 1, op: primitives.And, want: true, infos: 2},
		{name: "and one", temp: 25, door: 1, op: primitives.And, want: false},
		{name: "and second range", temp: 35, door: 1, op: "", want: true, infos: 2},
		{name: "or first short-circuits", temp: 15, door: 0, op: primitives.Or, want: true, infos: 1},
		{name: "or second", temp: 25, door: 1, op: primitives.Or, want: true, infos: 1},
		{name: "or none", temp: 25, door: 0, op: "or", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetValue("temp", tt.temp)
			s.SetValue("door", tt.door)
			waitValue(t, s, "temp", tt.temp)
			waitValue(t, s, "door", tt.door)

			ok, infos, err := s.CheckConditions([]primitives.Condition{temp, door}, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Len(t, infos, tt.infos)
		})
	}
}

func TestStore_CheckConditionsUnsetIsInvalidArgument(t *testing.T) {
	s := New()
	_, _, err := s.CheckConditions([]primitives.Condition{{Name: "ghost", Ranges: []primitives.Range{{Min: 0, Max: 1}}}}, primitives.And)
	assert.ErrorIs(t, err, primitives.ErrInvalidArgument)

	s.Declare("ghost")
	ok, _, err := s.CheckConditions([]primitives.Condition{{Name: "ghost", Ranges: []primitives.Range{{Min: 0, Max: 1}}}}, primitives.And)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = s.CheckConditions([]primitives.Condition{{Name: "ghost", Ranges: []primitives.Range{{Min: 0, Max: 1}}}}, "XOR")
	assert.ErrorIs(t, err, primitives.ErrInvalidArgument)
}

func TestStore_DurationHold(t *testing.T) {
	const hold = 300 * time.Millisecond
	cond := primitives.Condition{Name: "temp", Ranges: []primitives.Range{{Min: 10, Max: 20}}, Duration: hold}
	s, log := startStore(t, cond)

	s.SetValue("temp", 15)
	waitValue(t, s, "temp", 15)
	ok, _, err := s.CheckConditions([]primitives.Condition{cond}, primitives.And)
	require.NoError(t, err)
	assert.False(t, ok, "hold time has not elapsed")

	require.Eventually(t, func() bool {
		for _, c := range log.snapshot() {
			if c.Expired && c.Name == "temp" && c.Value == 15 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	ok, infos, err := s.CheckConditions([]primitives.Condition{cond}, primitives.And)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, infos, 1)
	assert.GreaterOrEqual(t, infos[0].Duration, hold)

	// another in-range value restarts the clock
	s.SetValue("temp", 16)
	waitValue(t, s, "temp", 16)
	ok, _, err = s.CheckConditions([]primitives.Condition{cond}, primitives.And)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_StaleTimerDiscarded(t *testing.T) {
	cond := primitives.Condition{Name: "temp", Ranges: []primitives.Range{{Min: 10, Max: 20}}, Duration: 100 * time.Millisecond}
	s, log := startStore(t, cond)

	s.SetValue("temp", 15)
	s.SetValue("temp", 50)
	waitValue(t, s, "temp", 50)

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 0, s.pending())
	for _, c := range log.snapshot() {
		assert.False(t, c.Expired, "stale timer must not report: %+v", c)
	}
}

func TestStore_ScheduledUpdateNotNotified(t *testing.T) {
	cond := primitives.Condition{Name: "temp", Ranges: []primitives.Range{{Min: 10, Max: 20}}, Duration: time.Hour}
	s, log := startStore(t, cond)

	s.SetValue("temp", 15)
	waitValue(t, s, "temp", 15)
	s.SetValue("other", 1)
	waitValue(t, s, "other", 1)

	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "other", log.snapshot()[0].Name)
	assert.Equal(t, 1, s.pending())
}

func TestStore_UnchangedValueNotNotified(t *testing.T) {
	s, log := startStore(t)
	s.SetValue("temp", 5)
	s.SetValue("temp", 5)
	s.SetValue("temp", 6)
	waitValue(t, s, "temp", 6)

	require.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	changes := log.snapshot()
	require.Len(t, changes, 2)
	assert.Equal(t, 5, changes[0].Value)
	assert.Equal(t, 6, changes[1].Value)
}

func TestStore_Reset(t *testing.T) {
	s := New()
	require.NoError(t, s.AddCondition(primitives.Condition{Name: "door", Ranges: []primitives.Range{{Min: 1, Max: 1}}}))
	s.SetValue("temp", 3)
	require.NoError(t, s.Reset())
	assert.Empty(t, s.Names())
	assert.Empty(t, s.descriptors)

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.ErrorIs(t, s.Reset(), primitives.ErrRunning)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, s.Names(), "queued update discarded by reset")
}

func TestStore_FIFO(t *testing.T) {
	s, log := startStore(t)
	for i := 1; i <= 200; i++ {
		s.SetValue("n", i)
	}
	waitValue(t, s, "n", 200)
	require.Eventually(t, func() bool { return len(log.snapshot()) == 200 }, time.Second, time.Millisecond)
	for i, c := range log.snapshot() {
		require.Equal(t, i+1, c.Value)
	}
}

func TestStore_CompareAndSwap(t *testing.T) {
	flag := primitives.Condition{Name: "HOT", Ranges: []primitives.Range{{Min: 1, Max: 1}}}
	s, log := startStore(t, flag)

	assert.False(t, s.CompareAndSwap("HOT", 1, 0))
	assert.True(t, s.CompareAndSwap("HOT", 0, 1))
	assert.Equal(t, 1, s.GetValue("HOT"))
	assert.False(t, s.CompareAndSwap("HOT", 0, 1))

	require.Eventually(t, func() bool {
		for _, c := range log.snapshot() {
			if c.Name == "HOT" && c.Value == 1 && c.InRange {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.True(t, s.CompareAndSwap("fresh", 0, 1))
	assert.False(t, s.CompareAndSwap("other", 3, 1))
}

func TestStore_StopIdempotent(t *testing.T) {
	s := New()
	s.Stop()
	s.Stop()
	assert.ErrorIs(t, s.Start(), primitives.ErrStopped)

	s = New()
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestStore_ValuesAndNames(t *testing.T) {
	s, _ := startStore(t)
	s.SetValue("b", 2)
	s.SetValue("a", 1)
	waitValue(t, s, "a", 1)
	assert.Equal(t, []string{"a", "b"}, s.Names())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, s.Values())
}
