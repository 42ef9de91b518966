package retry

import (
	"errors"
	"math/rand"
	"time"

	"github.com/hookline/hookline/internal/backoff"
)

var (
	ErrMissingMaxAttempts = errors.New("retry policy requires max attempts")
	ErrMissingBackoff     = errors.New("retry policy requires a base backoff")
	ErrInvalidJitter      = errors.New("jitter factor must be within [0, 1]")
)

// Rand is the injected randomness source for jitter. Float64 must return a
// value in [0, 1).
type Rand interface {
	Float64() float64
}

type mathRand struct{}

func (mathRand) Float64() float64 { return rand.Float64() }

// Policy decides whether a failed attempt gets a redelivery and how long the
// task stays invisible before it. Attempt counters are 1-based: attempt 1 is
// the initial delivery. Policy is an immutable value object.
type Policy struct {
	maxAttempts  int
	base         backoff.Backoff
	jitterFactor float64
	rand         Rand
}

// IsRetryable reports whether a redelivery should follow the given attempt.
func (p Policy) IsRetryable(attempt int) bool {
	return attempt >= 1 && attempt < p.maxAttempts
}

// WaitingTime returns the redelivery delay after the given attempt. The first
// retry waits the base interval; jitter samples uniformly from
// [d*(1-f), d*(1+f)].
func (p Policy) WaitingTime(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.base.Duration(attempt - 1)
	if p.jitterFactor == 0 {
		return d
	}
	min := float64(d) * (1 - p.jitterFactor)
	spread := float64(d) * 2 * p.jitterFactor
	return time.Duration(min + p.rand.Float64()*spread)
}

// PolicyBuilder accumulates policy components and fails fast on missing
// mandatory fields at Build.
type PolicyBuilder struct {
	maxAttempts int
	base        backoff.Backoff
	jitter      float64
	jitterErr   error
	rand        Rand
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{rand: mathRand{}}
}

// MaxAttempts caps the total attempt count at n; attempt a is retryable iff
// a < n.
func (b *PolicyBuilder) MaxAttempts(n int) *PolicyBuilder {
	b.maxAttempts = n
	return b
}

// Exponential waits delay * multiplier^(attempt-1) before the next attempt.
func (b *PolicyBuilder) Exponential(multiplier int, delay time.Duration) *PolicyBuilder {
	b.base = &backoff.ExponentialBackoff{Interval: delay, Base: multiplier}
	return b
}

// Constant waits delay before every retry.
func (b *PolicyBuilder) Constant(delay time.Duration) *PolicyBuilder {
	b.base = &backoff.ConstantBackoff{Interval: delay}
	return b
}

// Randomize jitters the waiting time by +/- factor.
func (b *PolicyBuilder) Randomize(factor float64) *PolicyBuilder {
	if factor < 0 || factor > 1 {
		b.jitterErr = ErrInvalidJitter
		return b
	}
	b.jitter = factor
	return b
}

// WithRand injects the randomness source, letting tests pin the jitter.
func (b *PolicyBuilder) WithRand(r Rand) *PolicyBuilder {
	b.rand = r
	return b
}

func (b *PolicyBuilder) Build() (Policy, error) {
	if b.jitterErr != nil {
		return Policy{}, b.jitterErr
	}
	if b.maxAttempts <= 0 {
		return Policy{}, ErrMissingMaxAttempts
	}
	if b.base == nil {
		return Policy{}, ErrMissingBackoff
	}
	return Policy{
		maxAttempts:  b.maxAttempts,
		base:         b.base,
		jitterFactor: b.jitter,
		rand:         b.rand,
	}, nil
}

// DefaultPolicy is the production configuration: at most 5 attempts,
// exponential 2s base doubling per attempt, jittered +/- 50%.
func DefaultPolicy() Policy {
	policy, err := NewPolicyBuilder().
		MaxAttempts(5).
		Exponential(2, 2*time.Second).
		Randomize(0.5).
		Build()
	if err != nil {
		panic(err)
	}
	return policy
}
