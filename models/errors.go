package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrModelUnavailable    = errors.New("generation model unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// ConfigurationError is returned at startup for missing credentials or
// invalid settings. It is never retried.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ProviderUnavailableError wraps a failure to reach the embedding backend.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("embedding provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

func (e *ProviderUnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }

// ModelUnavailableError wraps a failure to reach the generation backend.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// RateLimitedError reports backend throttling. RetryAfter is zero when the
// backend sent no hint.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s: %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// DimensionMismatchError means the persisted index was built with a
// different embedding dimension. The index has to be rebuilt.
type DimensionMismatchError struct {
	Path     string
	Stored   int
	Provided int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("index %s has dimension %d, provider produces %d: rebuild the index",
		e.Path, e.Stored, e.Provided)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// IsTransient reports whether a caller-level retry with backoff makes sense.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrModelUnavailable) ||
		errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the backend retry hint, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
