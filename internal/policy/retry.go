package policy

import (
	"errors"
	"math"
	"time"

	"github.com/cementai/plant-core/pkg/config"
)

// retryPolicy implements RetryPolicy
type retryPolicy struct {
	enabled    bool
	maxRetries int
	backoff    string // exponential, linear, constant
	baseMs     int
	maxMs      int // 0 means uncapped
}

// NewRetryPolicyFromConfig creates a retry policy from config
func NewRetryPolicyFromConfig(cfg *config.RetryPolicy) RetryPolicy {
	return &retryPolicy{
		enabled:    cfg.Enabled,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		baseMs:     cfg.BaseMs,
		maxMs:      cfg.MaxMs,
	}
}

// NewRetryPolicy creates a retry policy with explicit parameters
func NewRetryPolicy(enabled bool, maxRetries int, backoff string, baseMs int) RetryPolicy {
	return &retryPolicy{
		enabled:    enabled,
		maxRetries: maxRetries,
		backoff:    backoff,
		baseMs:     baseMs,
	}
}

func (p *retryPolicy) Enabled() bool {
	return p.enabled
}

func (p *retryPolicy) Name() string {
	return "retry"
}

func (p *retryPolicy) ShouldRetry(attempt int, err error) bool {
	if !p.enabled {
		return false
	}
	if attempt >= p.maxRetries {
		return false
	}
	if err == nil {
		return false
	}
	var perm *permanentError
	return !errors.As(err, &perm)
}

func (p *retryPolicy) GetBackoffDuration(attempt int) time.Duration {
	if !p.enabled || attempt <= 0 {
		return 0
	}

	var durationMs float64

	switch p.backoff {
	case "linear":
		durationMs = float64(p.baseMs) * float64(attempt)
	case "constant":
		durationMs = float64(p.baseMs)
	default:
		// exponential: baseMs * 2^(attempt-1)
		durationMs = float64(p.baseMs) * math.Pow(2, float64(attempt-1))
	}

	if p.maxMs > 0 && durationMs > float64(p.maxMs) {
		durationMs = float64(p.maxMs)
	}
	return time.Duration(durationMs) * time.Millisecond
}

func (p *retryPolicy) GetMaxRetries() int {
	return p.maxRetries
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that ShouldRetry refuses it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
