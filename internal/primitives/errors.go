package primitives

import "errors"

var (
	// ErrInvalidArgument reports a broken setup contract: duplicate states,
	// references to unregistered states, or evaluating a condition nobody
	// declared or set.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig reports a malformed rule, state, or condition
	// description detected before it is applied.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrRunning is returned by setup calls made while a component is running.
	ErrRunning = errors.New("rejected while running")

	// ErrStopped is returned when starting a component that was stopped.
	ErrStopped = errors.New("already stopped")
)
