// Package condition tracks the process-wide integer values that drive
// condition-based transitions, and the hold timers of duration-gated
// conditions.
//
// Writes are asynchronous: SetValue enqueues and a single goroutine applies
// updates in FIFO order, then reports each applied update through the
// OnChange callback. An update that newly enters the range of a
// duration-gated descriptor is reported only once its hold time has
// elapsed with the value unchanged.
package condition

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
)

// Value is the runtime record of one condition name.
type Value struct {
	Name        string    `json:"name" yaml:"name"`
	Value       int       `json:"value" yaml:"value"`
	LastUpdate  time.Time `json:"last_update" yaml:"last_update"`
	LastChanged time.Time `json:"last_changed" yaml:"last_changed"`

	// held is the longest hold duration validated by the timer queue since
	// LastChanged. It is reset together with LastChanged.
	held time.Duration
}

// Change is reported to the OnChange callback after an update was applied,
// or after a duration timer validated a hold.
type Change struct {
	Name     string
	Value    int
	Duration time.Duration // hold duration validated, Expired only
	InRange  bool          // the value matches some registered descriptor
	Expired  bool          // reported by the timer queue
}

type update struct {
	name   string
	value  int
	at     time.Time
	replay bool // value already written, notify only
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLimiter sets the limiter for repeated unset-value warnings.
func WithLimiter(l *logging.Limiter) Option {
	return func(s *Store) { s.limiter = l }
}

// Store is the condition value map plus its update queue and timer queue.
// The value map and the update queue have separate locks so readers never
// wait on writers enqueueing.
type Store struct {
	logger  *logging.Logger
	limiter *logging.Limiter

	mu          sync.Mutex
	values      map[string]*Value
	descriptors []primitives.Condition
	running     bool
	stopped     bool

	qmu    sync.Mutex
	queue  []update
	signal chan struct{}

	notifyMu sync.Mutex
	onChange func(Change)

	timers *timerQueue
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New returns a stopped Store.
func New(opts ...Option) *Store {
	s := &Store{
		values: make(map[string]*Value),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = logging.NewLimiter(nil)
	}
	s.timers = newTimerQueue(s.expire)
	return s
}

// OnChange registers the callback invoked after each applied update and each
// validated hold. Calls are serialized. Rejected while running.
func (s *Store) OnChange(fn func(Change)) error {
	if s.Running() {
		return fmt.Errorf("condition: on change: %w", primitives.ErrRunning)
	}
	s.notifyMu.Lock()
	s.onChange = fn
	s.notifyMu.Unlock()
	return nil
}

// AddCondition registers a descriptor used to schedule hold timers, and
// initializes its value to 0 if the name was never set. Rejected while
// running.
func (s *Store) AddCondition(c primitives.Condition) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Err().Str("condition", c.Name).Log("cannot add condition while running")
		return fmt.Errorf("condition: add %s: %w", c.Name, primitives.ErrRunning)
	}
	s.descriptors = append(s.descriptors, c)
	s.declareLocked(c.Name)
	return nil
}

// Declare initializes name to 0 if it was never set.
func (s *Store) Declare(name string) {
	s.mu.Lock()
	s.declareLocked(name)
	s.mu.Unlock()
}

func (s *Store) declareLocked(name string) {
	if _, ok := s.values[name]; ok {
		return
	}
	now := time.Now()
	s.values[name] = &Value{Name: name, LastUpdate: now, LastChanged: now}
}

// Reset forgets every value and descriptor and discards queued updates.
// Rejected while running.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("condition: reset: %w", primitives.ErrRunning)
	}
	s.values = make(map[string]*Value)
	s.descriptors = nil
	s.qmu.Lock()
	s.queue = nil
	s.qmu.Unlock()
	return nil
}

// SetValue enqueues an update and returns without waiting for it to apply.
func (s *Store) SetValue(name string, value int) {
	s.enqueue(update{name: name, value: value, at: time.Now()})
}

func (s *Store) enqueue(u update) {
	s.qmu.Lock()
	s.queue = append(s.queue, u)
	s.qmu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// GetValue returns the last applied value of name, or 0 with a rate limited
// warning if it was never set.
func (s *Store) GetValue(name string) int {
	s.mu.Lock()
	v, ok := s.values[name]
	var value int
	if ok {
		value = v.Value
	}
	s.mu.Unlock()
	if !ok && s.limiter.Allow("unset:"+name) {
		s.logger.Warning().Str("condition", name).Log("condition value not set, returning 0")
	}
	return value
}

// lookup returns a copy of the record for name.
func (s *Store) lookup(name string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok {
		return Value{}, false
	}
	return *v, true
}

// Values returns the current value of every known name.
func (s *Store) Values() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.values))
	for k, v := range s.values {
		out[k] = v.Value
	}
	return out
}

// Names returns every known condition name, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// CompareAndSwap sets name to next if its current value is old, resetting
// its change time. A successful swap of a name some descriptor references is
// replayed through the update queue so OnChange observes it in order.
// An unknown name counts as 0.
func (s *Store) CompareAndSwap(name string, old, next int) bool {
	now := time.Now()
	s.mu.Lock()
	v, ok := s.values[name]
	if !ok {
		if old != 0 {
			s.mu.Unlock()
			return false
		}
		v = &Value{Name: name}
		s.values[name] = v
	} else if v.Value != old {
		s.mu.Unlock()
		return false
	}
	v.Value = next
	v.LastUpdate = now
	if old != next || !ok {
		v.LastChanged = now
		v.held = 0
	}
	referenced := s.referencedLocked(name)
	s.mu.Unlock()
	if referenced && old != next {
		s.enqueue(update{name: name, value: next, at: now, replay: true})
	}
	return true
}

func (s *Store) referencedLocked(name string) bool {
	for _, d := range s.descriptors {
		if d.Name == name {
			return true
		}
	}
	return false
}

// CheckConditions evaluates conds under op. AND stops at the first failing
// condition, OR at the first passing one; an empty list holds. A satisfied
// condition contributes a snapshot to the returned infos. Evaluating a name
// that was never set or declared is an ErrInvalidArgument error.
func (s *Store) CheckConditions(conds []primitives.Condition, op primitives.Operator) (bool, []primitives.ConditionInfo, error) {
	if len(conds) == 0 {
		return true, nil, nil
	}
	op = op.Normalize()
	if op != primitives.And && op != primitives.Or {
		return false, nil, fmt.Errorf("%w: invalid operator %q", primitives.ErrInvalidArgument, string(op))
	}

	snap := make(map[string]Value, len(conds))
	s.mu.Lock()
	for _, c := range conds {
		if v, ok := s.values[c.Name]; ok {
			snap[c.Name] = *v
		}
	}
	s.mu.Unlock()

	now := time.Now()
	var infos []primitives.ConditionInfo
	for _, c := range conds {
		v, ok := snap[c.Name]
		if !ok {
			return false, nil, fmt.Errorf("%w: condition value not set: %s", primitives.ErrInvalidArgument, c.Name)
		}
		met := c.InRange(v.Value)
		var elapsed time.Duration
		if met && c.Duration > 0 {
			elapsed = now.Sub(v.LastChanged)
			met = elapsed >= c.Duration || v.held >= c.Duration
		}
		if met {
			infos = append(infos, primitives.ConditionInfo{Name: c.Name, Value: v.Value, Duration: elapsed})
		}
		switch {
		case op == primitives.And && !met:
			return false, nil, nil
		case op == primitives.Or && met:
			return true, infos, nil
		}
	}
	if op == primitives.And {
		return true, infos, nil
	}
	return false, nil, nil
}

// Start launches the update goroutine and the timer goroutine. Starting a
// running store is a no-op; a stopped store cannot be restarted.
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("condition: start: %w", primitives.ErrStopped)
	}
	if s.running {
		return nil
	}
	s.running = true
	s.timers.start()
	s.wg.Add(1)
	go s.run()
	return nil
}

// Running reports whether the store was started and not yet stopped.
func (s *Store) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts both goroutines and waits for them. Safe to call repeatedly
// and before Start. Queued updates that were not applied are dropped.
func (s *Store) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		started := s.running
		s.running = false
		s.stopped = true
		s.mu.Unlock()

		close(s.done)
		if started {
			s.wg.Wait()
			s.timers.stop()
		}
	})
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		s.qmu.Lock()
		batch := s.queue
		s.queue = nil
		s.qmu.Unlock()
		for _, u := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.apply(u)
		}
	}
}

func (s *Store) apply(u update) {
	var (
		inRange   bool
		scheduled bool
	)
	s.mu.Lock()
	v, ok := s.values[u.name]
	changed := u.replay
	switch {
	case u.replay:
		if ok {
			u.value = v.Value
		}
	case !ok:
		v = &Value{Name: u.name, Value: u.value, LastUpdate: u.at, LastChanged: u.at}
		s.values[u.name] = v
		changed = true
	default:
		v.LastUpdate = u.at
		if v.Value != u.value {
			v.Value = u.value
			v.LastChanged = u.at
			v.held = 0
			changed = true
		}
	}
	if !changed {
		// rewriting the current value is not a change
		s.mu.Unlock()
		return
	}
	for _, d := range s.descriptors {
		if d.Name != u.name || !d.InRange(u.value) {
			continue
		}
		inRange = true
		if d.Duration > 0 {
			s.timers.push(timerEntry{
				name:     u.name,
				value:    u.value,
				duration: d.Duration,
				expiry:   v.LastChanged.Add(d.Duration),
			})
			scheduled = true
			break
		}
	}
	s.mu.Unlock()

	if scheduled {
		s.logger.Debug().Str("condition", u.name).Int("value", u.value).Log("duration timer scheduled")
		return
	}
	s.notify(Change{Name: u.name, Value: u.value, InRange: inRange})
}

// expire runs on the timer goroutine.
func (s *Store) expire(e timerEntry) {
	s.mu.Lock()
	v, ok := s.values[e.name]
	valid := ok && v.Value == e.value && time.Since(v.LastChanged) >= e.duration
	if valid && e.duration > v.held {
		v.held = e.duration
	}
	s.mu.Unlock()

	if !valid {
		s.logger.Debug().Str("condition", e.name).Int("value", e.value).Log("stale duration timer discarded")
		return
	}
	s.logger.Info().Str("condition", e.name).Int("value", e.value).Dur("duration", e.duration).Log("duration condition satisfied")
	s.notify(Change{Name: e.name, Value: e.value, Duration: e.duration, InRange: true, Expired: true})
}

func (s *Store) notify(c Change) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.onChange != nil {
		s.onChange(c)
	}
}

func (s *Store) pending() int {
	return s.timers.pending()
}
