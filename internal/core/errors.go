package core

import (
	"errors"

	"github.com/comalice/ctlfsm/internal/primitives"
)

var (
	// ErrNotInitialized is returned by Start before a successful Init.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("engine already initialized")

	// ErrRunning is returned by setup and callback setters while running.
	ErrRunning = primitives.ErrRunning

	// ErrStopped is returned by lifecycle calls after Stop.
	ErrStopped = primitives.ErrStopped

	// ErrNotFound is returned by Registry lookups of unknown machines.
	ErrNotFound = errors.New("machine not found")
)
