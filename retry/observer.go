package retry

import (
	"context"
	"log/slog"
)

// LogObserver writes every attempt to a slog.Logger. Successful first
// attempts are logged at debug, retries at warn, terminal failures at error.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) ObserveAttempt(ctx context.Context, a Attempt) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case a.Err == nil && a.Number == 1:
		logger.DebugContext(ctx, "attempt succeeded", "attempt", a.Number, "elapsed", a.Elapsed)
	case a.Err == nil:
		logger.InfoContext(ctx, "attempt succeeded after retry", "attempt", a.Number, "elapsed", a.Elapsed)
	case a.WaitBeforeNext > 0:
		logger.WarnContext(ctx, "attempt failed, retrying",
			"attempt", a.Number,
			"kind", a.Kind.String(),
			"wait", a.WaitBeforeNext,
			"error", a.Err,
		)
	default:
		logger.ErrorContext(ctx, "attempt failed, giving up",
			"attempt", a.Number,
			"kind", a.Kind.String(),
			"error", a.Err,
		)
	}
}

// MultiObserver fans an attempt out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) ObserveAttempt(ctx context.Context, a Attempt) {
	for _, o := range m {
		if o != nil {
			o.ObserveAttempt(ctx, a)
		}
	}
}
