package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    ErrorKind
	}{
		{"rate limit", 429, "rate limit exceeded", KindRateLimited},
		{"service unavailable", 503, "service unavailable", KindRateLimited},
		{"overloaded message", 529, "Overloaded", KindRateLimited},
		{"unauthorized", 401, "invalid x-api-key", KindAuthFailed},
		{"forbidden", 403, "permission denied", KindAuthFailed},
		{"timeout", 408, "request timeout", KindTransient},
		{"internal error", 500, "internal server error", KindTransient},
		{"bad gateway", 502, "bad gateway", KindTransient},
		{"bad request", 400, "max_tokens required", KindInvalid},
		{"not found", 404, "model not found", KindInvalid},
		{"no status network failure", 0, "connection refused", KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.status, tt.message))
		})
	}
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindRateLimited}).Retryable())
	assert.True(t, (&Error{Kind: KindTransient}).Retryable())
	assert.False(t, (&Error{Kind: KindAuthFailed}).Retryable())
	assert.False(t, (&Error{Kind: KindInvalid}).Retryable())
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Provider: "anthropic", Status: 429, Message: "slow down"}
	assert.Contains(t, err.Error(), "anthropic")
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestWrapTransportPassesThroughCancellation(t *testing.T) {
	assert.ErrorIs(t, wrapTransport("anthropic", context.Canceled), context.Canceled)
	assert.ErrorIs(t, wrapTransport("anthropic", context.DeadlineExceeded), context.DeadlineExceeded)

	wrapped := wrapTransport("anthropic", errors.New("dial tcp: connection refused"))
	assert.True(t, IsTransient(wrapped))
}

func TestKindPredicates(t *testing.T) {
	rateLimited := fmt.Errorf("call failed: %w", &Error{Kind: KindRateLimited})
	assert.True(t, IsRateLimited(rateLimited))
	assert.False(t, IsAuthFailed(rateLimited))
	assert.False(t, IsTransient(rateLimited))

	assert.False(t, IsRateLimited(errors.New("plain")))
}

func TestNewFactory(t *testing.T) {
	c, err := New("anthropic", "sk-ant-REDACTED")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = New("openai", "sk-test-key-000000000000")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	_, err = New("gemini", "key")
	assert.Error(t, err)
}
