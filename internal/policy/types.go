package policy

import (
	"time"

	"github.com/cementai/plant-core/pkg/config"
)

// Policy represents a generic policy interface
type Policy interface {
	// Enabled returns whether the policy is enabled
	Enabled() bool
	// Name returns the policy name for identification
	Name() string
}

// RateLimitingPolicy handles rate limiting for requests
type RateLimitingPolicy interface {
	Policy
	// AllowRequest checks if a request from key should be allowed at now
	AllowRequest(key string, now time.Time) bool
	// GetRemainingQuota returns the whole tokens left for key at now
	GetRemainingQuota(key string, now time.Time) int
}

// RetryPolicy handles retry logic for failed calls
type RetryPolicy interface {
	Policy
	// ShouldRetry determines if a call should be retried after attempt failed
	ShouldRetry(attempt int, err error) bool
	// GetBackoffDuration calculates the backoff duration for a retry attempt
	GetBackoffDuration(attempt int) time.Duration
	// GetMaxRetries returns the maximum number of retries allowed
	GetMaxRetries() int
}

// CircuitBreakerPolicy handles circuit breaker logic
type CircuitBreakerPolicy interface {
	Policy
	// AllowRequest checks if a call should be allowed (circuit not open)
	AllowRequest(key string, now time.Time) bool
	// RecordSuccess records a successful call
	RecordSuccess(key string, now time.Time)
	// RecordFailure records a failed call
	RecordFailure(key string, now time.Time)
	// CheckAndGetState returns the current state, applying the open to
	// half-open transition when the timeout has elapsed
	CheckAndGetState(key string, now time.Time) CircuitState
}

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"   // Normal operation
	CircuitStateOpen     CircuitState = "open"     // Failing, rejecting calls
	CircuitStateHalfOpen CircuitState = "halfopen" // Testing if the backend recovered
)

// Set bundles the policies guarding a remote dependency. Nil members
// mean the policy is not configured.
type Set struct {
	Retry          RetryPolicy
	CircuitBreaker CircuitBreakerPolicy
}

// NewSetFromConfig builds the policies configured for a remote model
func NewSetFromConfig(remote *config.RemoteModel) *Set {
	s := &Set{}
	if remote == nil {
		return s
	}
	if remote.Retries != nil && remote.Retries.Enabled {
		s.Retry = NewRetryPolicyFromConfig(remote.Retries)
	}
	if cb := remote.CircuitBreaker; cb != nil && cb.Enabled {
		s.CircuitBreaker = NewCircuitBreakerPolicy(true, cb.FailureThreshold, cb.SuccessThreshold,
			time.Duration(cb.TimeoutMs)*time.Millisecond)
	}
	return s
}

// NewRateLimitingPolicyFromConfig builds a rate limiter, or nil when rate
// limiting is not configured.
func NewRateLimitingPolicyFromConfig(cfg *config.RateLimit) RateLimitingPolicy {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return NewRateLimitingPolicy(true, cfg.RPS, cfg.Burst)
}
