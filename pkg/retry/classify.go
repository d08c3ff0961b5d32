package retry

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

// transientMessages are substrings that mark a foreign error as transient.
var transientMessages = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"timed out",
	"rate limited",
	"temporarily unavailable",
}

// IsRetryableError is the default retry predicate.
//
// Platform errors are classified by kind: rate limits, server errors and
// network failures are retried, client errors are not. Errors from outside
// the platform boundary are retried when they look like transport timeouts
// or resets. Cancellation is never retried.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if apiErr, ok := discord.AsAPIError(err); ok {
		switch apiErr.Kind {
		case discord.KindRateLimited, discord.KindServerError, discord.KindNetwork:
			return true
		case discord.KindClientError:
			return false
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry[ -]?after:?\s*(\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|secs?|seconds?)?\b`)

// RetryAfterHint extracts a server-provided backoff hint from err. Platform
// rate-limit errors carry it as a field; other errors are searched for
// "retry after N seconds" or "retry after N ms".
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	if apiErr, ok := discord.AsAPIError(err); ok {
		if apiErr.Kind == discord.KindRateLimited && apiErr.RetryAfter > 0 {
			return apiErr.RetryAfter, true
		}
		return 0, false
	}

	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	value, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil || value <= 0 {
		return 0, false
	}

	unit := time.Second
	if strings.HasPrefix(strings.ToLower(m[2]), "m") {
		unit = time.Millisecond
	}
	return time.Duration(value * float64(unit)), true
}

// Reason returns a short label for metrics and logs.
func Reason(err error) string {
	if apiErr, ok := discord.AsAPIError(err); ok {
		return apiErr.Kind.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transient"
}
