package retry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/validator"
)

// JitterRatio is the uniform perturbation applied to a delay when jitter is on
const JitterRatio = 0.25

// Policy retry configuration
type Policy struct {
	// MaxAttempts total attempts including the first call
	MaxAttempts int `mapstructure:"max_attempts"`

	// BaseDelay delay before the second attempt
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// MaxDelay upper bound of a single delay
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// BackoffFactor growth factor between delays
	BackoffFactor float64 `mapstructure:"backoff_factor"`

	// Jitter enables ±25% random perturbation
	Jitter bool `mapstructure:"jitter"`
}

// DefaultPolicy 3 attempts, 100ms base, 5s cap, factor 2, jitter on
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// ApplyDefaults fills zero values. Jitter is left as configured.
func (p *Policy) ApplyDefaults() {
	def := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.BackoffFactor == 0 {
		p.BackoffFactor = def.BackoffFactor
	}
}

// Validate checks the policy
func (p Policy) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&p.MaxDelay, validation.Min(p.BaseDelay)),
		validation.Field(&p.BackoffFactor, validation.Required, validation.Min(1.0)),
	)
	return validator.Convert(err)
}

// Backoff returns the exponential strategy described by the policy
func (p Policy) Backoff() BackoffStrategy {
	jitter := 0.0
	if p.Jitter {
		jitter = JitterRatio
	}
	return ExponentialBackoff(p.BaseDelay,
		WithMultiplier(p.BackoffFactor),
		WithMaxDelay(p.MaxDelay),
		WithJitter(jitter))
}
