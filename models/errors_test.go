package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name      string
		err       error
		sentinel  error
		transient bool
	}{
		{"configuration", &ConfigurationError{Key: "GEMINI_API_KEY", Reason: "is required"}, ErrConfiguration, false},
		{"provider", &ProviderUnavailableError{Provider: "google", Err: cause}, ErrProviderUnavailable, true},
		{"model", &ModelUnavailableError{Model: "gemini-2.0-flash", Err: cause}, ErrModelUnavailable, true},
		{"rate limited", &RateLimitedError{Provider: "openai", RetryAfter: time.Second, Err: cause}, ErrRateLimited, true},
		{"dimension", &DimensionMismatchError{Path: "index.gob", Stored: 768, Provided: 1536}, ErrDimensionMismatch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("pipeline: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.transient, IsTransient(wrapped))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("generate: %w", &RateLimitedError{Provider: "google", RetryAfter: 7 * time.Second})
	d, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	_, ok = RetryAfter(errors.New("other"))
	assert.False(t, ok)
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &ModelUnavailableError{Model: "m", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dial tcp")
}
