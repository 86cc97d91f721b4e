package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds a whole question: retrieval plus generation.
	DefaultTimeout = 60 * time.Second

	// ShortTimeout is for quick operations (health checks, cache lookups)
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with the given timeout, or DefaultTimeout
// when d is not positive.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(parent, d)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
