package extensibility

import (
	"context"
	"time"

	"github.com/comalice/ctlfsm/internal/logging"
)

// ConditionSetter accepts condition updates. *core.Engine satisfies it.
type ConditionSetter interface {
	SetConditionValue(name string, value int)
}

// ReadFunc produces the current reading of a sensor.
type ReadFunc func(ctx context.Context) (int, error)

// Sampler polls a ReadFunc and writes each reading into a condition.
type Sampler struct {
	target    ConditionSetter
	condition string
	period    time.Duration
	read      ReadFunc
	logger    *logging.Logger
	limiter   *logging.Limiter
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithSamplerLogger sets the logger for read failures.
func WithSamplerLogger(l *logging.Logger) SamplerOption {
	return func(s *Sampler) { s.logger = l }
}

// NewSampler returns a sampler writing readings of read to condition on
// target every period.
func NewSampler(target ConditionSetter, condition string, period time.Duration, read ReadFunc, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		target:    target,
		condition: condition,
		period:    period,
		read:      read,
		limiter:   logging.NewLimiter(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples once immediately and then every period until ctx is done.
// Failed reads are logged and skipped.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		s.sample(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	v, err := s.read(ctx)
	if err != nil {
		if s.limiter.Allow("sample:" + s.condition) {
			s.logger.Warning().Str("condition", s.condition).Err(err).Log("sensor read failed")
		}
		return
	}
	s.target.SetConditionValue(s.condition, v)
}
