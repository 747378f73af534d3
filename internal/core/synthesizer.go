package core

import (
	"fmt"
	"sync"

	"github.com/comalice/ctlfsm/internal/condition"
	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
)

// Synthesizer turns condition changes into events. Each definition keeps a
// 0/1 flag under its own name in the condition store; edge definitions fire
// when the flag rises and emit <name>_RESET when it falls, level definitions
// fire on every evaluation that matches. Every change is also followed by
// an InternalEvent carrying the changed condition.
type Synthesizer struct {
	store   *condition.Store
	emit    func(*primitives.Event)
	logger  *logging.Logger
	limiter *logging.Limiter

	mu   sync.RWMutex
	defs []primitives.EventDefinition
}

func newSynthesizer(store *condition.Store, emit func(*primitives.Event), logger *logging.Logger, limiter *logging.Limiter) *Synthesizer {
	return &Synthesizer{store: store, emit: emit, logger: logger, limiter: limiter}
}

// Add registers a definition and declares its flag.
func (s *Synthesizer) Add(def primitives.EventDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def.Mode = def.TriggerMode()
	def.Operator = def.Operator.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.Name == def.Name {
			return fmt.Errorf("%w: event definition already exists: %s", primitives.ErrInvalidArgument, def.Name)
		}
	}
	s.defs = append(s.defs, def)
	s.store.Declare(def.Name)
	return nil
}

func (s *Synthesizer) reset() {
	s.mu.Lock()
	s.defs = nil
	s.mu.Unlock()
}

// Definitions returns the registered definitions in registration order.
func (s *Synthesizer) Definitions() []primitives.EventDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]primitives.EventDefinition(nil), s.defs...)
}

// OnChange re-evaluates every definition. The store serializes calls.
func (s *Synthesizer) OnChange(c condition.Change) {
	for _, def := range s.Definitions() {
		s.evaluate(def)
	}
	s.emit(primitives.NewEvent(primitives.InternalEvent, primitives.ConditionInfo{
		Name:     c.Name,
		Value:    c.Value,
		Duration: c.Duration,
	}))
}

func (s *Synthesizer) evaluate(def primitives.EventDefinition) {
	ok, infos, err := s.store.CheckConditions(def.Conditions, def.Operator)
	if err != nil {
		if s.limiter.Allow("synth:" + def.Name) {
			s.logger.Err().Str("event", def.Name).Err(err).Log("event definition evaluation failed")
		}
		return
	}
	if ok {
		rose := s.store.CompareAndSwap(def.Name, 0, 1)
		if rose || def.Mode == primitives.Level {
			evt := primitives.NewEvent(def.Name, infos...)
			s.logger.Debug().Str("event", evt.String()).Bool("rising", rose).Log("event synthesized")
			s.emit(evt)
		}
		return
	}
	if s.store.CompareAndSwap(def.Name, 1, 0) && def.Mode == primitives.Edge {
		s.logger.Debug().Str("event", def.ResetName()).Log("event synthesized")
		s.emit(primitives.NewEvent(def.ResetName()))
	}
}
