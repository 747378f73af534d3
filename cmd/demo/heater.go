package main

import (
	"context"
	"slices"
	"sync"

	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
)

const (
	ambient      = 15
	heatRate     = 3
	coolRate     = 1
	heatingState = "HEATING"
)

// heater simulates a water tank with one heating element. The element is
// switched by the machine's enter and exit callbacks.
type heater struct {
	logger *logging.Logger

	mu      sync.Mutex
	temp    int
	element bool
	broken  bool
}

func newHeater(logger *logging.Logger, temp int, broken bool) *heater {
	return &heater{logger: logger, temp: temp, broken: broken}
}

// read advances the simulation by one step and returns the tank temperature.
func (h *heater) read(context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.element && !h.broken:
		h.temp += heatRate
	case h.temp > ambient:
		h.temp -= coolRate
	}
	return h.temp, nil
}

func (h *heater) setElement(on bool) {
	h.mu.Lock()
	h.element = on
	h.mu.Unlock()
	h.logger.Info().Bool("on", on).Log("heating element switched")
}

func (h *heater) elementOn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.element
}

func (h *heater) handler() *core.Handler {
	return &core.Handler{
		PreEvent: func(current string, event *primitives.Event) bool {
			// resets only mean something after a fault
			return event.Name != "RESET" || current == "FAULT"
		},
		Enter: func(states []string) {
			if slices.Contains(states, heatingState) {
				h.setElement(true)
			}
		},
		Exit: func(states []string) {
			if slices.Contains(states, heatingState) {
				h.setElement(false)
			}
		},
		PostEvent: func(event *primitives.Event, handled bool) {
			if handled && !event.IsInternal() {
				h.logger.Debug().Str("event", event.String()).Log("event handled")
			}
		},
	}
}
