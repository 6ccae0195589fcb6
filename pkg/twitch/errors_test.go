package twitch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")

	authErr := &AuthError{Message: "auth failed", Err: inner}
	assert.ErrorIs(t, authErr, inner)

	rateErr := &RateLimitError{Message: "too fast", RetryAfter: 5, Err: inner}
	assert.ErrorIs(t, rateErr, inner)

	apiErr := &APIError{StatusCode: 500, Message: "server error", Err: inner}
	assert.ErrorIs(t, apiErr, inner)
}

func TestCircuitBreakerErrorMessage(t *testing.T) {
	err := &CircuitBreakerError{Message: "open"}
	assert.Contains(t, err.Error(), "open")
}
