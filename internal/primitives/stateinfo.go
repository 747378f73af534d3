package primitives

import (
	"fmt"
	"strings"
	"time"
)

// StateInfo describes a state in the hierarchy.
type StateInfo struct {
	Name    string        `json:"name" yaml:"name"`
	Parent  string        `json:"parent,omitempty" yaml:"parent,omitempty"`   // empty for a root state
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"` // inactivity timeout, 0 = none
}

// Validate checks the state's own fields. Parent existence is a hierarchy
// concern and is checked on registration.
func (s StateInfo) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: state name is required", ErrInvalidConfig)
	}
	if s.Parent == s.Name {
		return fmt.Errorf("%w: state %s cannot be its own parent", ErrInvalidConfig, s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: state %s has negative timeout %v", ErrInvalidConfig, s.Name, s.Timeout)
	}
	return nil
}
