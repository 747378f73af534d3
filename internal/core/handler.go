package core

import "github.com/comalice/ctlfsm/internal/primitives"

type (
	// TransitionCallback observes a transition before any state is exited.
	TransitionCallback func(exit []string, event *primitives.Event, enter []string)

	// PreEventCallback may veto an event by returning false.
	PreEventCallback func(current string, event *primitives.Event) bool

	// EnterCallback receives the entered states, outermost first.
	EnterCallback func(enter []string)

	// ExitCallback receives the exited states, innermost first.
	ExitCallback func(exit []string)

	// PostEventCallback is invoked once per dispatched event.
	PostEventCallback func(event *primitives.Event, handled bool)
)

// Handler groups the lifecycle callbacks. Every slot is optional; an unset
// PreEvent allows the event.
type Handler struct {
	Transition TransitionCallback
	PreEvent   PreEventCallback
	Enter      EnterCallback
	Exit       ExitCallback
	PostEvent  PostEventCallback
}

func (h *Handler) preEvent(current string, event *primitives.Event) bool {
	if h.PreEvent == nil {
		return true
	}
	return h.PreEvent(current, event)
}

func (h *Handler) transition(exit []string, event *primitives.Event, enter []string) {
	if h.Transition != nil {
		h.Transition(exit, event, enter)
	}
}

func (h *Handler) exit(states []string) {
	if h.Exit != nil {
		h.Exit(states)
	}
}

func (h *Handler) enter(states []string) {
	if h.Enter != nil {
		h.Enter(states)
	}
}

func (h *Handler) postEvent(event *primitives.Event, handled bool) {
	if h.PostEvent != nil {
		h.PostEvent(event, handled)
	}
}
