package retry

import (
	"fmt"
	"math"
	"time"
)

// Policy is an immutable retry budget with exponential backoff. Build it
// with NewPolicy and share the value freely.
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	Multiplier  float64
	MaxWait     time.Duration
}

// DefaultPolicy is 3 attempts, 2s initial wait, x1.5 growth, 10s cap.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	InitialWait: 2 * time.Second,
	Multiplier:  1.5,
	MaxWait:     10 * time.Second,
}

// NewPolicy validates and returns a Policy.
func NewPolicy(maxAttempts int, initialWait time.Duration, multiplier float64, maxWait time.Duration) (Policy, error) {
	p := Policy{
		MaxAttempts: maxAttempts,
		InitialWait: initialWait,
		Multiplier:  multiplier,
		MaxWait:     maxWait,
	}
	return p, p.Validate()
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)
	case p.InitialWait <= 0:
		return fmt.Errorf("retry policy: initial wait must be > 0, got %s", p.InitialWait)
	case p.Multiplier < 1.0:
		return fmt.Errorf("retry policy: multiplier must be >= 1.0, got %g", p.Multiplier)
	case p.MaxWait < p.InitialWait:
		return fmt.Errorf("retry policy: max wait %s is below initial wait %s", p.MaxWait, p.InitialWait)
	}
	return nil
}

// Backoff returns the wait after failed attempt k (1-based):
// min(InitialWait * Multiplier^(k-1), MaxWait).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt-1))
	if wait >= float64(p.MaxWait) || math.IsInf(wait, 0) {
		return p.MaxWait
	}
	return time.Duration(wait)
}
