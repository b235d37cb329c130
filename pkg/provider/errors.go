package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind drives the orchestrator's recovery choice for a failed call.
type ErrorKind string

const (
	// KindRateLimited means the credential is throttled; rotate to the next one.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuthFailed means the credential is rejected; abort the turn,
	// rotating would burn the rest of the pool against the same account.
	KindAuthFailed ErrorKind = "auth_failed"
	// KindTransient means the failure may clear on its own; retry with backoff.
	KindTransient ErrorKind = "transient"
	// KindInvalid means the request itself is malformed; retrying cannot help.
	KindInvalid ErrorKind = "invalid"
)

// Error is a model API failure annotated with its recovery classification.
type Error struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Retryable reports whether another attempt (same or rotated credential)
// could succeed. Rate limits and transient failures qualify; auth
// rejections and malformed requests do not.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// classify maps an HTTP status and message to a recovery kind. An
// overloaded upstream is treated like a rate limit so the caller rotates
// away instead of hammering the same credential.
func classify(status int, message string) ErrorKind {
	lower := strings.ToLower(message)
	switch {
	case status == 429:
		return KindRateLimited
	case status == 503, strings.Contains(lower, "overloaded"):
		return KindRateLimited
	case status == 401, status == 403:
		return KindAuthFailed
	case status == 408, status >= 500:
		return KindTransient
	case status > 0:
		return KindInvalid
	default:
		return KindTransient
	}
}

// wrapTransport classifies non-HTTP failures: cancellation passes through
// untouched, everything else (DNS, dial, TLS, timeouts) is transient.
func wrapTransport(providerName string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindTransient, Provider: providerName, Message: err.Error()}
}

// AsError extracts the classified form, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

// IsRateLimited reports whether the error calls for credential rotation.
func IsRateLimited(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == KindRateLimited
}

// IsAuthFailed reports whether the credential was rejected outright.
func IsAuthFailed(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == KindAuthFailed
}

// IsTransient reports whether a same-credential retry is worthwhile.
func IsTransient(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == KindTransient
}
