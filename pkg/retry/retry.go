// Package retry re-runs failed remote calls with exponential backoff.
//
// Backoff grows as BaseDelay * 2^(attempt-1), capped at MaxDelay and
// perturbed by ±Jitter. A retry-after hint carried by the error replaces
// the computed delay. Waits go through an injectable clock and end early
// when the context is cancelled.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/clock"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

// Defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 0.1
)

// Options configures a Handler.
type Options struct {
	// MaxAttempts bounds the number of calls, including the first.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter is the randomization fraction applied to each delay, in [0, 1).
	// Negative disables jitter.
	Jitter float64

	// IsRetryable decides whether an error is worth another attempt.
	// Defaults to IsRetryableError.
	IsRetryable func(error) bool

	// OnRetry is invoked before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)

	Clock   clock.Clock
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}

// DefaultOptions returns the standard retry policy.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// Result is the outcome of a retried operation.
type Result[T any] struct {
	Success   bool
	Value     T
	Err       error
	Attempts  int
	TotalTime time.Duration
}

// Handler holds a retry policy. It is stateless between calls and safe for
// concurrent use.
type Handler struct {
	opts   Options
	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a Handler. Zero fields take their defaults.
func New(opts Options) *Handler {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	if opts.Jitter >= 1 {
		opts.Jitter = DefaultJitter
	}
	if opts.IsRetryable == nil {
		opts.IsRetryable = IsRetryableError
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	return &Handler{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger.With().Str("component", "retry").Logger(),
	}
}

// MaxAttempts returns the configured attempt bound.
func (h *Handler) MaxAttempts() int {
	return h.opts.MaxAttempts
}

// newBackOff returns a fresh exponential schedule for one Execute call.
func (h *Handler) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.opts.BaseDelay
	b.MaxInterval = h.opts.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = h.opts.Jitter
	b.Reset()
	return b
}

// Execute runs op until it succeeds, fails with a non-retryable error, the
// attempt bound is reached, or ctx is done. It never panics on op errors;
// the terminal error is reported in the Result.
func Execute[T any](ctx context.Context, h *Handler, op func(context.Context) (T, error)) Result[T] {
	start := h.clock.Now()
	schedule := h.newBackOff()

	var result Result[T]
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		value, err := op(ctx)
		if err == nil {
			result.Success = true
			result.Value = value
			result.Err = nil
			break
		}
		result.Err = err

		if attempt >= h.opts.MaxAttempts || !h.opts.IsRetryable(err) || ctx.Err() != nil {
			break
		}

		delay := schedule.NextBackOff()
		if hint, ok := RetryAfterHint(err); ok {
			delay = hint
		}

		h.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", h.opts.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying after error")
		h.opts.Metrics.RecordRetry(Reason(err))
		if h.opts.OnRetry != nil {
			h.opts.OnRetry(attempt, err, delay)
		}

		select {
		case <-h.clock.After(delay):
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.TotalTime = h.clock.Now().Sub(start)
			return result
		}
	}

	result.TotalTime = h.clock.Now().Sub(start)
	return result
}

// ExecuteOrError is Execute that returns the terminal error instead of a
// Result.
func ExecuteOrError[T any](ctx context.Context, h *Handler, op func(context.Context) (T, error)) (T, error) {
	result := Execute(ctx, h, op)
	if !result.Success {
		var zero T
		return zero, result.Err
	}
	return result.Value, nil
}

// WithRetry runs op under a one-off Handler built from opts.
func WithRetry[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	return ExecuteOrError(ctx, New(opts), op)
}
