package llm

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when the circuit breaker is in open state
// and rejects requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrEmptyResponse is the cause recorded when a backend answers 2xx with no
// usable content.
var ErrEmptyResponse = errors.New("empty response")

// ConfigurationError reports a request that can never succeed as configured:
// an unknown provider or a missing credential. It is raised before any
// network call and must not be retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return "llm configuration: " + e.Reason
	}
	return fmt.Sprintf("llm configuration (%s): %s", e.Provider, e.Reason)
}

// ProviderError reports a failed round-trip to a backend: transport error,
// timeout, non-2xx status or an undecodable body. Callers may retry or fall
// back to another provider.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
