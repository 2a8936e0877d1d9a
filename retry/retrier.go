package retry

import (
	"context"
	"time"

	"github.com/use-agent/siteprobe/models"
)

// Attempt describes one execution of an operation. It is handed to the
// Observer and then discarded.
type Attempt struct {
	Number int
	Kind   models.ErrorKind // KindNone on success
	Err    error
	// Elapsed is how long the operation ran.
	Elapsed time.Duration
	// WaitBeforeNext is the backoff scheduled after this attempt, zero when
	// no further attempt follows.
	WaitBeforeNext time.Duration
}

// Observer receives every attempt. Observers must not block; they never
// influence retry decisions.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) { f(ctx, a) }

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Operation is one attempt at producing a value.
type Operation[T any] func(ctx context.Context) (T, error)

// Outcome is the final result of Execute.
type Outcome[T any] struct {
	Value    T
	Err      error
	Kind     models.ErrorKind // KindNone on success
	Attempts int
}

// OK reports whether the operation eventually succeeded.
func (o Outcome[T]) OK() bool { return o.Kind == models.KindNone && o.Err == nil }

// Retrier runs operations under a Policy. It holds no per-call state and is
// safe for concurrent use.
type Retrier struct {
	policy   Policy
	observer Observer
	sleep    SleepFunc
	classify func(error) models.ErrorKind
}

// Option customises a Retrier.
type Option func(*Retrier)

// WithObserver sets the attempt observer.
func WithObserver(o Observer) Option {
	return func(r *Retrier) { r.observer = o }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(s SleepFunc) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithClassifier replaces Classify.
func WithClassifier(c func(error) models.ErrorKind) Option {
	return func(r *Retrier) { r.classify = c }
}

// New creates a Retrier. The policy must already be valid.
func New(policy Policy, opts ...Option) *Retrier {
	r := &Retrier{
		policy:   policy,
		sleep:    Sleep,
		classify: Classify,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Execute runs op until it succeeds, fails with a terminal kind, or the
// attempt budget is spent. Cancelling ctx aborts an in-flight backoff wait
// and yields a failed outcome carrying the attempts made so far.
func Execute[T any](ctx context.Context, r *Retrier, op Operation[T]) Outcome[T] {
	var zero T
	for attempt := 1; ; attempt++ {
		start := time.Now()
		value, err := op(ctx)
		elapsed := time.Since(start)

		if err == nil {
			r.observe(ctx, Attempt{Number: attempt, Elapsed: elapsed})
			return Outcome[T]{Value: value, Attempts: attempt}
		}

		kind := r.classify(err)
		if kind == models.KindNone {
			kind = models.KindFatal
		}

		// A dead parent context ends the run no matter what the failure was.
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.observe(ctx, Attempt{Number: attempt, Kind: models.KindTransient, Err: ctxErr, Elapsed: elapsed})
			return Outcome[T]{Value: zero, Err: ctxErr, Kind: models.KindTransient, Attempts: attempt}
		}

		if !kind.Retryable() || attempt >= r.policy.MaxAttempts {
			r.observe(ctx, Attempt{Number: attempt, Kind: kind, Err: err, Elapsed: elapsed})
			return Outcome[T]{Value: zero, Err: err, Kind: kind, Attempts: attempt}
		}

		wait := r.policy.Backoff(attempt)
		r.observe(ctx, Attempt{Number: attempt, Kind: kind, Err: err, Elapsed: elapsed, WaitBeforeNext: wait})

		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			return Outcome[T]{Value: zero, Err: sleepErr, Kind: models.KindTransient, Attempts: attempt}
		}
	}
}

func (r *Retrier) observe(ctx context.Context, a Attempt) {
	if r.observer != nil {
		r.observer.ObserveAttempt(ctx, a)
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
