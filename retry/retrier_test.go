package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/siteprobe/models"
)

// recordingSleep captures requested waits without actually sleeping.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testPolicy(t *testing.T, attempts int) Policy {
	t.Helper()
	p, err := NewPolicy(attempts, 2*time.Second, 1.5, 10*time.Second)
	require.NoError(t, err)
	return p
}

func transientErr() error {
	return models.NewFetchError(models.KindTransient, "connection reset", nil)
}

func TestExecute_PermanentTransientUsesEveryAttempt(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		rec := &recordingSleep{}
		r := New(testPolicy(t, n), WithSleep(rec.sleep))

		calls := 0
		out := Execute(context.Background(), r, func(ctx context.Context) (string, error) {
			calls++
			return "", transientErr()
		})

		assert.False(t, out.OK(), "n=%d", n)
		assert.Equal(t, n, calls, "n=%d", n)
		assert.Equal(t, n, out.Attempts, "n=%d", n)
		assert.Equal(t, models.KindTransient, out.Kind, "n=%d", n)
		assert.Len(t, rec.waits, n-1, "n=%d", n)
	}
}

func TestExecute_BackoffSchedule(t *testing.T) {
	rec := &recordingSleep{}
	p, err := NewPolicy(6, time.Second, 2.0, 10*time.Second)
	require.NoError(t, err)
	r := New(p, WithSleep(rec.sleep))

	Execute(context.Background(), r, func(ctx context.Context) (int, error) {
		return 0, models.NewStatusError("https://example.com", 503)
	})

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}
	assert.Equal(t, want, rec.waits)
}

func TestExecute_TerminalKindsStopAfterOneAttempt(t *testing.T) {
	cases := map[string]error{
		"not found":     models.NewStatusError("https://example.com/missing", 404),
		"invalid input": models.NewFetchError(models.KindInvalidInput, "bad target", models.ErrInvalidTarget),
		"fatal":         errors.New("something nobody expected"),
		"blocked":       models.NewFetchError(models.KindBlocked, "captcha", nil),
	}

	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &recordingSleep{}
			r := New(testPolicy(t, 5), WithSleep(rec.sleep))

			calls := 0
			out := Execute(context.Background(), r, func(ctx context.Context) (string, error) {
				calls++
				return "", failure
			})

			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, out.Attempts)
			assert.False(t, out.Kind.Retryable())
			assert.Empty(t, rec.waits)
		})
	}
}

func TestExecute_SucceedsAfterTwoTransientFailures(t *testing.T) {
	rec := &recordingSleep{}
	r := New(testPolicy(t, 3), WithSleep(rec.sleep))

	calls := 0
	out := Execute(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr()
		}
		return "<html></html>", nil
	})

	require.True(t, out.OK())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "<html></html>", out.Value)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, rec.waits)
}

func TestExecute_RateLimitedIsRetried(t *testing.T) {
	r := New(testPolicy(t, 2), WithSleep((&recordingSleep{}).sleep))

	out := Execute(context.Background(), r, func(ctx context.Context) (string, error) {
		return "", models.NewStatusError("https://example.com", 429)
	})

	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, models.KindRateLimited, out.Kind)
}

func TestExecute_ObserverSeesEveryAttempt(t *testing.T) {
	var seen []Attempt
	obs := ObserverFunc(func(ctx context.Context, a Attempt) { seen = append(seen, a) })
	r := New(testPolicy(t, 3), WithSleep((&recordingSleep{}).sleep), WithObserver(obs))

	calls := 0
	Execute(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", transientErr()
		}
		return "ok", nil
	})

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Number)
	assert.Equal(t, models.KindTransient, seen[0].Kind)
	assert.Equal(t, 2*time.Second, seen[0].WaitBeforeNext)
	assert.Equal(t, 2, seen[1].Number)
	assert.Equal(t, models.KindNone, seen[1].Kind)
	assert.Zero(t, seen[1].WaitBeforeNext)
}

func TestExecute_CancelDuringBackoff(t *testing.T) {
	p, err := NewPolicy(5, time.Hour, 1.0, time.Hour)
	require.NoError(t, err)
	r := New(p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := Execute(ctx, r, func(ctx context.Context) (string, error) {
		return "", transientErr()
	})

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, out.OK())
	assert.Equal(t, 1, out.Attempts)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, models.KindTransient, out.Kind)
}

func TestExecute_CancelledContextStopsRetrying(t *testing.T) {
	r := New(testPolicy(t, 5), WithSleep((&recordingSleep{}).sleep))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	out := Execute(ctx, r, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", ctx.Err()
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestPolicy_Validate(t *testing.T) {
	_, err := NewPolicy(0, time.Second, 1.5, 10*time.Second)
	assert.Error(t, err)
	_, err = NewPolicy(3, 0, 1.5, 10*time.Second)
	assert.Error(t, err)
	_, err = NewPolicy(3, time.Second, 0.5, 10*time.Second)
	assert.Error(t, err)
	_, err = NewPolicy(3, 5*time.Second, 1.5, time.Second)
	assert.Error(t, err)
	assert.NoError(t, DefaultPolicy.Validate())
}

func TestPolicy_BackoffMatchesFormula(t *testing.T) {
	p := DefaultPolicy
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 3*time.Second, p.Backoff(2))
	assert.Equal(t, 4500*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 6750*time.Millisecond, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(5))
	assert.Equal(t, 10*time.Second, p.Backoff(200))
}
