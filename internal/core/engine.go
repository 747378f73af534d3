// Package core provides the runtime tier of the state machine: the Engine
// that owns the event queue and dispatch goroutine, the Synthesizer that
// derives events from condition changes, and the Registry of named engines.
//
// All state mutation happens on the single dispatch goroutine. Events are
// processed strictly in arrival order and each one commits at most one
// transition.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/ctlfsm/internal/condition"
	"github.com/comalice/ctlfsm/internal/config"
	"github.com/comalice/ctlfsm/internal/hierarchy"
	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
	"github.com/comalice/ctlfsm/internal/transition"
)

// Lifecycle is the engine's coarse state.
type Lifecycle int32

const (
	Uninitialized Lifecycle = iota
	Initialized
	Running
	Stopped
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("lifecycle(%d)", int32(l))
	}
}

// TransitionRecord describes one committed transition.
type TransitionRecord struct {
	Machine    string                     `json:"machine" yaml:"machine"`
	EventID    uuid.UUID                  `json:"event_id" yaml:"event_id"`
	Event      string                     `json:"event" yaml:"event"`
	From       string                     `json:"from" yaml:"from"`
	To         string                     `json:"to" yaml:"to"`
	Exit       []string                   `json:"exit" yaml:"exit"`
	Enter      []string                   `json:"enter" yaml:"enter"`
	Conditions []primitives.ConditionInfo `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Time       time.Time                  `json:"time" yaml:"time"`
}

// Snapshot is a point-in-time diagnostic view of an engine.
type Snapshot struct {
	Machine    string         `json:"machine" yaml:"machine"`
	Lifecycle  string         `json:"lifecycle" yaml:"lifecycle"`
	State      string         `json:"state" yaml:"state"`
	Config     string         `json:"config,omitempty" yaml:"config,omitempty"`
	Conditions map[string]int `json:"conditions" yaml:"conditions"`
	Queued     int            `json:"queued" yaml:"queued"`
	Handled    uint64         `json:"handled" yaml:"handled"`
	Unhandled  uint64         `json:"unhandled" yaml:"unhandled"`
	Time       time.Time      `json:"time" yaml:"time"`
}

// Engine is a hierarchical state machine driven by events and condition
// values. Safe for concurrent use.
type Engine struct {
	name       string
	logger     *logging.Logger
	limiter    *logging.Limiter
	now        func() time.Time
	publishers []Publisher
	sources    []EventSource
	visualizer Visualizer

	conditions  *condition.Store
	hierarchy   *hierarchy.Hierarchy
	transitions *transition.Table
	synth       *Synthesizer
	queue       *eventQueue

	initMu      sync.Mutex
	mu          sync.Mutex
	lifecycle   Lifecycle
	handler     Handler
	fingerprint string

	handled   atomic.Uint64
	unhandled atomic.Uint64

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	wg          sync.WaitGroup
	once        sync.Once
	dispatching atomic.Bool
}

// New returns an uninitialized engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		name:  "fsm",
		now:   time.Now,
		queue: newEventQueue(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.limiter = logging.NewLimiter(nil)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.build()
	return e
}

func (e *Engine) build() {
	e.conditions = condition.New(condition.WithLogger(e.logger), condition.WithLimiter(e.limiter))
	e.hierarchy = hierarchy.New(hierarchy.WithLogger(e.logger))
	e.transitions = transition.New()
	e.synth = newSynthesizer(e.conditions, e.HandleEvent, e.logger, e.limiter)
	// neither component is running yet
	_ = e.conditions.OnChange(e.synth.OnChange)
	_ = e.hierarchy.OnTimeout(e.onStateTimeout)
}

// reset empties the components in place after a failed Init, so a retry
// starts clean and concurrent readers keep valid pointers.
func (e *Engine) reset() error {
	e.synth.reset()
	return errors.Join(
		e.conditions.Reset(),
		e.hierarchy.Reset(),
		e.transitions.Clear(),
	)
}

// Name returns the machine name.
func (e *Engine) Name() string { return e.name }

// Lifecycle returns the engine's lifecycle state.
func (e *Engine) Lifecycle() Lifecycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle
}

func (e *Engine) setupAllowed(what string) error {
	e.mu.Lock()
	lc := e.lifecycle
	e.mu.Unlock()
	switch lc {
	case Running:
		e.logger.Err().Str("machine", e.name).Str("call", what).Log("rejected while running")
		return fmt.Errorf("%s: %w", what, ErrRunning)
	case Stopped:
		return fmt.Errorf("%s: %w", what, ErrStopped)
	}
	return nil
}

// Init loads src into the engine and commits the initial state. On failure
// the engine stays uninitialized with nothing registered.
func (e *Engine) Init(src config.Source) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	switch lc := e.Lifecycle(); lc {
	case Uninitialized:
	case Stopped:
		return fmt.Errorf("init: %w", ErrStopped)
	default:
		e.logger.Warning().Str("machine", e.name).Log("already initialized")
		return ErrAlreadyInitialized
	}
	if src == nil {
		return fmt.Errorf("%w: init: nil config source", primitives.ErrInvalidArgument)
	}

	err := src.Apply(e)
	if err == nil && e.hierarchy.CurrentState() == "" {
		err = fmt.Errorf("%w: no initial state set", primitives.ErrInvalidConfig)
	}
	if err != nil {
		e.logger.Err().Str("machine", e.name).Err(err).Log("init failed")
		if rerr := e.reset(); rerr != nil {
			e.logger.Err().Str("machine", e.name).Err(rerr).Log("reset after failed init")
		}
		return fmt.Errorf("init: %w", err)
	}

	var fingerprint string
	if fp, ok := src.(interface{ Fingerprint() string }); ok {
		fingerprint = fp.Fingerprint()
	}

	e.mu.Lock()
	e.lifecycle = Initialized
	e.fingerprint = fingerprint
	e.mu.Unlock()
	e.logger.Info().
		Str("machine", e.name).
		Str("state", e.hierarchy.CurrentState()).
		Str("config", fingerprint).
		Int("states", len(e.hierarchy.States())).
		Int("rules", len(e.transitions.Rules())).
		Int("events", len(e.synth.Definitions())).
		Log("initialized")
	return nil
}

// AddState registers a state. Rejected while running.
func (e *Engine) AddState(info primitives.StateInfo) error {
	if err := e.setupAllowed("add state"); err != nil {
		return err
	}
	return e.hierarchy.AddState(info)
}

// AddEventDefinition registers a synthesized event and the conditions it
// watches. Rejected while running.
func (e *Engine) AddEventDefinition(def primitives.EventDefinition) error {
	if err := e.setupAllowed("add event definition"); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	for _, c := range def.Conditions {
		if err := e.conditions.AddCondition(c); err != nil {
			return err
		}
	}
	return e.synth.Add(def)
}

// AddTransition registers a rule between registered states. Rejected while
// running.
func (e *Engine) AddTransition(rule primitives.TransitionRule) error {
	if err := e.setupAllowed("add transition"); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if !e.hierarchy.Has(rule.From) {
		return fmt.Errorf("%w: transition from unregistered state %s", primitives.ErrInvalidArgument, rule.From)
	}
	if !e.hierarchy.Has(rule.To) {
		return fmt.Errorf("%w: transition to unregistered state %s", primitives.ErrInvalidArgument, rule.To)
	}
	for _, c := range rule.Conditions {
		if err := e.conditions.AddCondition(c); err != nil {
			return err
		}
	}
	return e.transitions.Add(rule)
}

// SetInitialState makes name the current state. Rejected while running.
func (e *Engine) SetInitialState(name string) error {
	if err := e.setupAllowed("set initial state"); err != nil {
		return err
	}
	return e.hierarchy.SetState(name)
}

// Start launches the condition, timer, watchdog and dispatch goroutines.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.lifecycle {
	case Uninitialized:
		e.logger.Err().Str("machine", e.name).Log("start before init")
		return fmt.Errorf("start: %w", ErrNotInitialized)
	case Running:
		e.logger.Warning().Str("machine", e.name).Log("already running")
		return fmt.Errorf("start: %w", ErrRunning)
	case Stopped:
		return fmt.Errorf("start: %w", ErrStopped)
	}

	e.transitions.Freeze()
	if err := e.conditions.Start(); err != nil {
		return err
	}
	if err := e.hierarchy.Start(); err != nil {
		return err
	}
	e.wg.Add(1)
	go e.dispatchLoop()
	for _, src := range e.sources {
		e.wg.Add(1)
		go e.drain(src)
	}
	// re-arm the initial state's timeout from start time
	if cur := e.hierarchy.CurrentState(); cur != "" {
		_ = e.hierarchy.SetState(cur)
	}
	e.lifecycle = Running
	e.logger.Info().Str("machine", e.name).Str("state", e.hierarchy.CurrentState()).Log("started")
	return nil
}

// Stop halts every goroutine and waits for them. Safe to call repeatedly
// and in any lifecycle state. Queued events are dropped.
//
// Called while a callback is running, for example from an enter callback,
// Stop does not wait: the dispatch goroutine exits once the callback
// returns.
func (e *Engine) Stop() {
	e.once.Do(func() {
		e.mu.Lock()
		prev := e.lifecycle
		e.lifecycle = Stopped
		e.mu.Unlock()

		close(e.done)
		e.cancel()
		e.conditions.Stop()
		e.hierarchy.Stop()
		if prev != Running {
			return
		}
		if e.dispatching.Load() {
			go e.awaitStopped()
			return
		}
		e.awaitStopped()
	})
}

func (e *Engine) awaitStopped() {
	e.wg.Wait()
	e.logger.Info().
		Str("machine", e.name).
		Str("state", e.hierarchy.CurrentState()).
		Int("dropped", e.queue.len()).
		Log("stopped")
}

// HandleEvent enqueues event for dispatch and returns immediately. Events
// queued before Start are dispatched once running; events after Stop are
// dropped.
func (e *Engine) HandleEvent(event *primitives.Event) {
	if event == nil {
		return
	}
	select {
	case <-e.done:
		e.logger.Debug().Str("machine", e.name).Str("event", event.Name).Log("event dropped after stop")
		return
	default:
	}
	e.queue.push(event)
}

// SetConditionValue enqueues a condition update.
func (e *Engine) SetConditionValue(name string, value int) {
	e.conditions.SetValue(name, value)
}

// GetConditionValue returns the last applied value of name, 0 if unset.
func (e *Engine) GetConditionValue(name string) int {
	return e.conditions.GetValue(name)
}

// CurrentState returns the current state name.
func (e *Engine) CurrentState() string {
	return e.hierarchy.CurrentState()
}

// States returns the registered states in registration order.
func (e *Engine) States() []primitives.StateInfo { return e.hierarchy.States() }

// Rules returns the registered transition rules in insertion order.
func (e *Engine) Rules() []primitives.TransitionRule { return e.transitions.Rules() }

// EventDefinitions returns the registered event definitions.
func (e *Engine) EventDefinitions() []primitives.EventDefinition { return e.synth.Definitions() }

// Ancestors returns state and its parents, child first.
func (e *Engine) Ancestors(state string) []string { return e.hierarchy.Ancestors(state) }

// Visualize renders the machine with the configured Visualizer.
func (e *Engine) Visualize() string {
	if e.visualizer == nil {
		return ""
	}
	return e.visualizer.ExportDOT(e.States(), e.Rules(), e.CurrentState())
}

// Snapshot returns a diagnostic view of the engine.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	lc, fingerprint := e.lifecycle, e.fingerprint
	e.mu.Unlock()
	return Snapshot{
		Machine:    e.name,
		Lifecycle:  lc.String(),
		State:      e.CurrentState(),
		Config:     fingerprint,
		Conditions: e.conditions.Values(),
		Queued:     e.queue.len(),
		Handled:    e.handled.Load(),
		Unhandled:  e.unhandled.Load(),
		Time:       e.now(),
	}
}

func (e *Engine) setCallback(what string, set func(h *Handler)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lifecycle == Running {
		e.logger.Err().Str("machine", e.name).Str("call", what).Log("rejected while running")
		return fmt.Errorf("%s: %w", what, ErrRunning)
	}
	set(&e.handler)
	return nil
}

// SetTransitionCallback sets the transition slot. Rejected while running.
func (e *Engine) SetTransitionCallback(fn TransitionCallback) error {
	return e.setCallback("set transition callback", func(h *Handler) { h.Transition = fn })
}

// SetPreEventCallback sets the pre-event slot. Rejected while running.
func (e *Engine) SetPreEventCallback(fn PreEventCallback) error {
	return e.setCallback("set pre-event callback", func(h *Handler) { h.PreEvent = fn })
}

// SetEnterCallback sets the enter slot. Rejected while running.
func (e *Engine) SetEnterCallback(fn EnterCallback) error {
	return e.setCallback("set enter callback", func(h *Handler) { h.Enter = fn })
}

// SetExitCallback sets the exit slot. Rejected while running.
func (e *Engine) SetExitCallback(fn ExitCallback) error {
	return e.setCallback("set exit callback", func(h *Handler) { h.Exit = fn })
}

// SetPostEventCallback sets the post-event slot. Rejected while running.
func (e *Engine) SetPostEventCallback(fn PostEventCallback) error {
	return e.setCallback("set post-event callback", func(h *Handler) { h.PostEvent = fn })
}

// SetHandler replaces all five slots. Rejected while running.
func (e *Engine) SetHandler(h *Handler) error {
	if h == nil {
		return fmt.Errorf("%w: set handler: nil handler", primitives.ErrInvalidArgument)
	}
	return e.setCallback("set handler", func(dst *Handler) { *dst = *h })
}

func (e *Engine) onStateTimeout(state string, timeout time.Duration) {
	e.HandleEvent(primitives.NewEventWithData(primitives.StateTimeoutEvent, state))
}

func (e *Engine) drain(src EventSource) {
	defer e.wg.Done()
	events := src.Events()
	for {
		select {
		case <-e.done:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			e.HandleEvent(evt)
		}
	}
}

func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	for {
		evt, ok := e.queue.pop(e.done)
		if !ok {
			return
		}
		e.dispatching.Store(true)
		e.dispatch(&h, evt)
		e.dispatching.Store(false)
	}
}

// dispatch runs pre-event, match, transition, exit, commit, enter and
// post-event for one event. A panicking callback is logged and the event
// reported unhandled.
func (e *Engine) dispatch(h *Handler, evt *primitives.Event) {
	postDone := false
	defer func() {
		if r := recover(); r != nil {
			e.logger.Err().
				Str("machine", e.name).
				Str("event", evt.Name).
				Any("panic", r).
				Log("callback panicked")
			e.unhandled.Add(1)
			if !postDone {
				e.safePost(h, evt)
			}
		}
	}()

	current := e.hierarchy.CurrentState()
	if !h.preEvent(current, evt) {
		e.logger.Debug().Str("machine", e.name).Str("state", current).Str("event", evt.Name).Log("event vetoed")
		e.unhandled.Add(1)
		postDone = true
		h.postEvent(evt, false)
		return
	}

	rule, infos, found := e.match(current, evt)
	if !found {
		if !evt.IsInternal() {
			e.logger.Debug().Str("machine", e.name).Str("state", current).Str("event", evt.Name).Log("no transition")
		}
		e.unhandled.Add(1)
		postDone = true
		h.postEvent(evt, false)
		return
	}

	exit, enter := e.hierarchy.ExitEnterPath(current, rule.To)
	e.logger.Info().
		Str("machine", e.name).
		Str("from", current).
		Str("to", rule.To).
		Str("event", evt.String()).
		Log("transition")
	h.transition(exit, evt, enter)
	h.exit(exit)
	if err := e.hierarchy.SetState(rule.To); err != nil {
		e.logger.Err().Str("machine", e.name).Err(err).Log("commit failed")
		e.unhandled.Add(1)
		postDone = true
		h.postEvent(evt, false)
		return
	}
	h.enter(enter)
	e.handled.Add(1)
	e.publish(TransitionRecord{
		Machine:    e.name,
		EventID:    evt.ID,
		Event:      evt.Name,
		From:       current,
		To:         rule.To,
		Exit:       exit,
		Enter:      enter,
		Conditions: infos,
		Time:       e.now(),
	})
	postDone = true
	h.postEvent(evt, true)
}

func (e *Engine) safePost(h *Handler, evt *primitives.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Err().Str("machine", e.name).Str("event", evt.Name).Any("panic", r).Log("post-event callback panicked")
		}
	}()
	h.postEvent(evt, false)
}

// match walks from current up through its ancestors and returns the first
// rule whose conditions hold.
func (e *Engine) match(current string, evt *primitives.Event) (primitives.TransitionRule, []primitives.ConditionInfo, bool) {
	for _, state := range e.hierarchy.Ancestors(current) {
		for _, rule := range e.transitions.Find(state, evt.Name) {
			ok, infos, err := e.conditions.CheckConditions(rule.Conditions, rule.Operator)
			if err != nil {
				if e.limiter.Allow("rule:" + rule.String()) {
					e.logger.Err().Str("machine", e.name).Str("rule", rule.String()).Err(err).Log("rule evaluation failed")
				}
				continue
			}
			if ok {
				return rule, infos, true
			}
		}
	}
	return primitives.TransitionRule{}, nil, false
}

func (e *Engine) publish(rec TransitionRecord) {
	for _, p := range e.publishers {
		if err := p.Publish(e.ctx, rec); err != nil {
			e.logger.Warning().Str("machine", e.name).Err(err).Log("publish failed")
		}
	}
}
