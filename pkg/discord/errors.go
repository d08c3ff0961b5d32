package discord

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed set of remote failure categories.
type ErrorKind int

const (
	// KindRateLimited is an HTTP 429. RetryAfter carries the platform's hint.
	KindRateLimited ErrorKind = iota + 1

	// KindServerError is a 5xx response.
	KindServerError

	// KindClientError is any other 4xx response. Retrying will not help.
	KindClientError

	// KindNetwork is a transport failure before a response was received.
	KindNetwork
)

// String returns the metric and log label of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// APIError is the only error type returned by Client and StateReader
// implementations for remote failures.
type APIError struct {
	Kind ErrorKind

	// Status is the HTTP status code, zero for KindNetwork.
	Status int

	// Code is the platform's JSON error code, when present.
	Code int

	// RetryAfter is the platform's backoff hint for KindRateLimited.
	RetryAfter time.Duration

	// Global is set when the rate limit applies to every route.
	Global bool

	Message string
	Method  string
	Path    string

	Err error
}

func (e *APIError) Error() string {
	prefix := "discord"
	if e.Method != "" {
		prefix = fmt.Sprintf("discord %s %s", e.Method, e.Path)
	}
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("%s: rate limited, retry after %s", prefix, e.RetryAfter)
	case KindNetwork:
		return fmt.Sprintf("%s: network error: %v", prefix, e.Err)
	default:
		if e.Code != 0 {
			return fmt.Sprintf("%s: %d %s (code %d)", prefix, e.Status, e.Message, e.Code)
		}
		return fmt.Sprintf("%s: %d %s", prefix, e.Status, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AsAPIError returns the first *APIError in err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// NewRateLimitedError builds a KindRateLimited error.
func NewRateLimitedError(retryAfter time.Duration, message string) *APIError {
	return &APIError{Kind: KindRateLimited, Status: 429, RetryAfter: retryAfter, Message: message}
}

// NewStatusError classifies an HTTP failure status.
func NewStatusError(status int, message string) *APIError {
	kind := KindClientError
	switch {
	case status == 429:
		kind = KindRateLimited
	case status >= 500:
		kind = KindServerError
	}
	return &APIError{Kind: kind, Status: status, Message: message}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: err.Error(), Err: err}
}
