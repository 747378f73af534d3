// Package hierarchy holds the state tree, the current state pointer, and the
// inactivity watchdog of the current state.
//
// The tree is built before Start and is read-only afterwards. The current
// state has its own lock so reads of it never contend with topology queries.
package hierarchy

import (
	"fmt"
	"sync"
	"time"

	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
)

type node struct {
	info primitives.StateInfo
}

// Option configures a Hierarchy.
type Option func(*Hierarchy)

// WithLogger sets the hierarchy's logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hierarchy) { h.logger = l }
}

// Hierarchy is a forest of named states with a single current state.
type Hierarchy struct {
	logger *logging.Logger

	mu      sync.RWMutex
	states  map[string]*node
	order   []string
	running bool
	stopped bool

	curMu     sync.Mutex
	current   string
	timeout   time.Duration
	deadline  time.Time
	onTimeout func(state string, timeout time.Duration)

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New returns an empty Hierarchy.
func New(opts ...Option) *Hierarchy {
	h := &Hierarchy{
		states: make(map[string]*node),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddState registers a state. The parent, if any, must already exist.
func (h *Hierarchy) AddState(info primitives.StateInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		h.logger.Err().Str("state", info.Name).Log("cannot add state while running")
		return fmt.Errorf("hierarchy: add state %s: %w", info.Name, primitives.ErrRunning)
	}
	if _, ok := h.states[info.Name]; ok {
		return fmt.Errorf("%w: state already exists: %s", primitives.ErrInvalidArgument, info.Name)
	}
	if info.Parent != "" {
		if _, ok := h.states[info.Parent]; !ok {
			return fmt.Errorf("%w: parent state does not exist: %s (of %s)", primitives.ErrInvalidArgument, info.Parent, info.Name)
		}
	}
	h.states[info.Name] = &node{info: info}
	h.order = append(h.order, info.Name)
	return nil
}

// Has reports whether name is registered.
func (h *Hierarchy) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.states[name]
	return ok
}

// State returns the registration of name.
func (h *Hierarchy) State(name string) (primitives.StateInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.states[name]
	if !ok {
		return primitives.StateInfo{}, false
	}
	return n.info, true
}

// States returns every registered state in registration order.
func (h *Hierarchy) States() []primitives.StateInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]primitives.StateInfo, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.states[name].info)
	}
	return out
}

// Reset removes every state and clears the current state. Rejected while
// running.
func (h *Hierarchy) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("hierarchy: reset: %w", primitives.ErrRunning)
	}
	h.states = make(map[string]*node)
	h.order = nil
	h.curMu.Lock()
	h.current, h.timeout, h.deadline = "", 0, time.Time{}
	h.curMu.Unlock()
	return nil
}

// Ancestors returns state followed by its transitive parents, child first.
// An unregistered state yields just itself.
func (h *Hierarchy) Ancestors(state string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ancestorsLocked(state)
}

func (h *Hierarchy) ancestorsLocked(state string) []string {
	var chain []string
	for cur := state; cur != ""; {
		chain = append(chain, cur)
		n, ok := h.states[cur]
		if !ok {
			break
		}
		cur = n.info.Parent
	}
	return chain
}

// ExitEnterPath splits the move from one state to another at their least
// common ancestor. exit is ordered child to parent, enter parent to child.
// Moving to the same state yields two empty paths.
func (h *Hierarchy) ExitEnterPath(from, to string) (exit, enter []string) {
	h.mu.RLock()
	fromChain := h.ancestorsLocked(from)
	toChain := h.ancestorsLocked(to)
	h.mu.RUnlock()

	i, j := len(fromChain)-1, len(toChain)-1
	for i >= 0 && j >= 0 && fromChain[i] == toChain[j] {
		i--
		j--
	}
	exit = append([]string{}, fromChain[:i+1]...)
	enter = make([]string, 0, j+1)
	for ; j >= 0; j-- {
		enter = append(enter, toChain[j])
	}
	return exit, enter
}

// SetState makes name current and arms its inactivity timeout, replacing any
// previous deadline.
func (h *Hierarchy) SetState(name string) error {
	info, ok := h.State(name)
	if !ok {
		h.logger.Err().Str("state", name).Log("state does not exist")
		return fmt.Errorf("%w: state does not exist: %s", primitives.ErrInvalidArgument, name)
	}
	h.curMu.Lock()
	h.current = name
	h.timeout = info.Timeout
	if info.Timeout > 0 {
		h.deadline = time.Now().Add(info.Timeout)
		h.logger.Debug().Str("state", name).Dur("timeout", info.Timeout).Log("state timeout armed")
	} else {
		h.deadline = time.Time{}
	}
	h.curMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// CurrentState returns the current state, empty before the first SetState.
func (h *Hierarchy) CurrentState() string {
	h.curMu.Lock()
	defer h.curMu.Unlock()
	return h.current
}

// OnTimeout registers the callback invoked from the watchdog goroutine each
// time the current state's timeout elapses. Rejected while running.
func (h *Hierarchy) OnTimeout(fn func(state string, timeout time.Duration)) error {
	if h.Running() {
		return fmt.Errorf("hierarchy: on timeout: %w", primitives.ErrRunning)
	}
	h.curMu.Lock()
	h.onTimeout = fn
	h.curMu.Unlock()
	return nil
}

// Start freezes the tree and launches the timeout watchdog.
func (h *Hierarchy) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return fmt.Errorf("hierarchy: start: %w", primitives.ErrStopped)
	}
	if h.running {
		return nil
	}
	h.running = true
	h.wg.Add(1)
	go h.watch()
	return nil
}

// Running reports whether the watchdog is active.
func (h *Hierarchy) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Stop halts the watchdog and waits for it. Safe to call repeatedly.
func (h *Hierarchy) Stop() {
	h.once.Do(func() {
		h.mu.Lock()
		h.running = false
		h.stopped = true
		h.mu.Unlock()
		close(h.done)
		h.wg.Wait()
	})
}

func (h *Hierarchy) watch() {
	defer h.wg.Done()
	for {
		var (
			timer *time.Timer
			wait  <-chan time.Time
		)
		h.curMu.Lock()
		if h.timeout > 0 {
			if d := time.Until(h.deadline); d <= 0 {
				state, timeout, fn := h.current, h.timeout, h.onTimeout
				h.deadline = time.Now().Add(h.timeout)
				h.curMu.Unlock()
				h.logger.Info().Str("state", state).Dur("timeout", timeout).Log("state timeout")
				if fn != nil {
					fn(state, timeout)
				}
				continue
			} else {
				timer = time.NewTimer(d)
				wait = timer.C
			}
		}
		h.curMu.Unlock()

		select {
		case <-h.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-h.wake:
		case <-wait:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
