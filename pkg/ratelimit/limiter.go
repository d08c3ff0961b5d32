// Package ratelimit throttles calls to the chat platform API.
//
// A Limiter combines three independent gates:
//   - a token bucket that refills continuously up to a maximum capacity,
//   - a cooldown between resource-creation requests,
//   - an externally imposed window set when the platform answers with a
//     rate-limit signal (HTTP 429).
//
// Refill is computed lazily from elapsed clock time; no background goroutine
// is involved. All bucket reads and writes happen under a single mutex so that
// several writers sharing one Limiter never double-spend the budget.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/clock"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

// Kind classifies a request for throttling purposes.
type Kind string

const (
	// KindCreate is a resource-creation request; subject to the create cooldown.
	KindCreate Kind = "create"

	// KindUpdate is a resource-modification request.
	KindUpdate Kind = "update"

	// KindDelete is a resource-removal request.
	KindDelete Kind = "delete"

	// KindGeneric is any other request.
	KindGeneric Kind = "generic"
)

// NeverCreated is reported as State.TimeSinceLastCreate when no create
// request has been admitted since construction or the last Reset.
const NeverCreated = time.Duration(math.MaxInt64)

// Default limits.
const (
	DefaultMaxTokens      = 50
	DefaultCreateCooldown = time.Second
)

// Options configures a Limiter.
type Options struct {
	// MaxTokens is the bucket capacity. Defaults to DefaultMaxTokens.
	MaxTokens int

	// RefillRate is the number of tokens added per second. Defaults to MaxTokens.
	RefillRate float64

	// CreateCooldown is the minimum spacing between two create requests.
	CreateCooldown time.Duration

	// MinRequestInterval is the minimum spacing between any two requests.
	MinRequestInterval time.Duration

	// Clock drives all timing. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives rate-limit events. The zero value discards them.
	Logger zerolog.Logger

	// Metrics records waits and rate-limit signals. May be nil.
	Metrics *telemetry.Metrics
}

// DefaultOptions returns the limits used by Default and by writers built
// from environment settings.
func DefaultOptions() Options {
	return Options{
		MaxTokens:      DefaultMaxTokens,
		RefillRate:     DefaultMaxTokens,
		CreateCooldown: DefaultCreateCooldown,
	}
}

// State is a point-in-time snapshot of a Limiter.
type State struct {
	Tokens              float64       `json:"tokens"`
	MaxTokens           float64       `json:"max_tokens"`
	RefillRate          float64       `json:"refill_rate"`
	IsRateLimited       bool          `json:"is_rate_limited"`
	RateLimitedFor      time.Duration `json:"rate_limited_for"`
	TimeSinceLastCreate time.Duration `json:"time_since_last_create"`
}

// Limiter is a token bucket with a create cooldown and external windows.
type Limiter struct {
	mu sync.Mutex

	bucket *rate.Limiter
	opts   Options
	clock  clock.Clock
	logger zerolog.Logger

	rateLimitedUntil time.Time
	lastCreateAt     time.Time
	hasCreated       bool
	lastRequestAt    time.Time
	hasRequested     bool
}

// New creates a Limiter. Zero MaxTokens and RefillRate fall back to their
// defaults; zero durations disable the corresponding gate.
func New(opts Options) *Limiter {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.RefillRate <= 0 {
		opts.RefillRate = float64(opts.MaxTokens)
	}
	if opts.CreateCooldown < 0 {
		opts.CreateCooldown = 0
	}
	if opts.MinRequestInterval < 0 {
		opts.MinRequestInterval = 0
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	return &Limiter{
		bucket: newBucket(opts),
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger.With().Str("component", "rate-limiter").Logger(),
	}
}

// newBucket returns a full bucket.
func newBucket(opts Options) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(opts.RefillRate), opts.MaxTokens)
}

// Wait blocks until a request of the given kind may proceed and then
// consumes one token. It only returns an error when ctx is done first.
func (l *Limiter) Wait(ctx context.Context, kind Kind) error {
	start := l.clock.Now()

	for {
		l.mu.Lock()
		now := l.clock.Now()
		delay := l.delayLocked(now, kind)
		if delay == 0 {
			if l.bucket.AllowN(now, 1) {
				l.admitLocked(now, kind)
				l.mu.Unlock()
				l.opts.Metrics.RecordLimiterWait(string(kind), now.Sub(start))
				return nil
			}
			// Float rounding left the bucket a hair short of one token.
			delay = time.Millisecond
		}
		l.mu.Unlock()

		select {
		case <-l.clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CanRequest reports whether a request of the given kind would be admitted
// right now. It never consumes a token.
func (l *Limiter) CanRequest(kind Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	return l.delayLocked(now, kind) == 0
}

// HandleRateLimit records a backpressure signal from the platform. Tokens are
// drained to zero and every request is held back for d.
func (l *Limiter) HandleRateLimit(d time.Duration) {
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	now := l.clock.Now()
	l.bucket = newBucket(l.opts)
	l.bucket.AllowN(now, l.opts.MaxTokens)
	if until := now.Add(d); until.After(l.rateLimitedUntil) {
		l.rateLimitedUntil = until
	}
	l.mu.Unlock()

	l.logger.Warn().Dur("retry_after", d).Msg("Rate limited by platform, pausing requests")
	l.opts.Metrics.RecordRateLimit(d)
}

// State returns a snapshot taken after applying pending refill.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	st := State{
		Tokens:              math.Min(l.bucket.TokensAt(now), float64(l.opts.MaxTokens)),
		MaxTokens:           float64(l.opts.MaxTokens),
		RefillRate:          l.opts.RefillRate,
		TimeSinceLastCreate: NeverCreated,
	}
	if st.Tokens < 0 {
		st.Tokens = 0
	}
	if now.Before(l.rateLimitedUntil) {
		// The bucket refills underneath the window, but none of it is
		// usable until the window closes.
		st.Tokens = 0
		st.IsRateLimited = true
		st.RateLimitedFor = l.rateLimitedUntil.Sub(now)
	}
	if l.hasCreated {
		st.TimeSinceLastCreate = now.Sub(l.lastCreateAt)
	}
	return st
}

// Reset restores a full bucket and clears the rate-limit window and the
// create cooldown.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bucket = newBucket(l.opts)
	l.rateLimitedUntil = time.Time{}
	l.lastCreateAt = time.Time{}
	l.hasCreated = false
	l.lastRequestAt = time.Time{}
	l.hasRequested = false
}

// delayLocked returns how long a request of kind must wait at now. Zero means
// it may proceed. Must be called with l.mu held.
func (l *Limiter) delayLocked(now time.Time, kind Kind) time.Duration {
	var delay time.Duration

	if now.Before(l.rateLimitedUntil) {
		delay = max(delay, l.rateLimitedUntil.Sub(now))
	}

	if kind == KindCreate && l.hasCreated && l.opts.CreateCooldown > 0 {
		if wait := l.lastCreateAt.Add(l.opts.CreateCooldown).Sub(now); wait > 0 {
			delay = max(delay, wait)
		}
	}

	if l.hasRequested && l.opts.MinRequestInterval > 0 {
		if wait := l.lastRequestAt.Add(l.opts.MinRequestInterval).Sub(now); wait > 0 {
			delay = max(delay, wait)
		}
	}

	if tokens := l.bucket.TokensAt(now); tokens < 1 {
		need := (1 - tokens) / l.opts.RefillRate
		delay = max(delay, time.Duration(math.Ceil(need*float64(time.Second))))
	}

	return delay
}

// admitLocked records an admitted request. Must be called with l.mu held.
func (l *Limiter) admitLocked(now time.Time, kind Kind) {
	l.lastRequestAt = now
	l.hasRequested = true
	if kind == KindCreate {
		l.lastCreateAt = now
		l.hasCreated = true
	}
}

var (
	defaultMu      sync.Mutex
	defaultLimiter *Limiter
)

// Default returns the process-wide Limiter, creating it with DefaultOptions
// on first use. Call sites that share one platform budget but do not thread a
// Limiter through their signatures use this accessor.
func Default() *Limiter {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLimiter == nil {
		defaultLimiter = New(DefaultOptions())
	}
	return defaultLimiter
}

// ResetDefault discards the process-wide Limiter. The next Default call
// builds a fresh one.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLimiter = nil
}
