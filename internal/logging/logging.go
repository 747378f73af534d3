// Package logging builds the structured loggers used by the engine and its
// components, and a per-category limiter for warnings that can repeat at
// event rate.
//
// A nil *Logger is valid and discards everything, so components accept one
// without guarding every call site.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the generified logiface logger passed around the module.
type Logger = logiface.Logger[logiface.Event]

// New returns a JSON line logger writing to w at the given level.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(`ts`),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Discard returns nil, the disabled logger.
func Discard() *Logger { return nil }

// ParseLevel maps a level keyword (err, error, warn, info, ...) onto a
// logiface level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "off", "disabled", "none":
		return logiface.LevelDisabled, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
	}
}

// DefaultRates allow a burst of 5 per second and 30 per minute per category.
var DefaultRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
}

// Limiter suppresses repeats of the same log category beyond a rate.
type Limiter struct {
	limiter *catrate.Limiter
}

// NewLimiter returns a Limiter using rates, or DefaultRates if rates is empty.
func NewLimiter(rates map[time.Duration]int) *Limiter {
	if len(rates) == 0 {
		rates = DefaultRates
	}
	return &Limiter{limiter: catrate.NewLimiter(rates)}
}

// Allow reports whether a message in category may be logged now. A nil
// Limiter allows everything.
func (l *Limiter) Allow(category string) bool {
	if l == nil || l.limiter == nil {
		return true
	}
	_, ok := l.limiter.Allow(category)
	return ok
}
