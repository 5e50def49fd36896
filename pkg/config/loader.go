package config

import (
	"fmt"
	"net/url"
	"os"
)

// LoadConfig loads and parses a configuration file. An empty path yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := validateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid default config: %w", err)
		}
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}

	if err := validatePredictor(&cfg.Predictor); err != nil {
		return fmt.Errorf("predictor validation failed: %w", err)
	}
	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return fmt.Errorf("optimizer validation failed: %w", err)
	}
	return nil
}

// validatePredictor validates the prediction service configuration
func validatePredictor(p *PredictorConfig) error {
	if p.HTTPAddr == "" {
		return fmt.Errorf("http_addr cannot be empty")
	}
	if p.ScalerPath == "" {
		return fmt.Errorf("scaler_path cannot be empty")
	}
	if p.Remote == nil && p.ModelPath == "" {
		return fmt.Errorf("model_path cannot be empty without a remote model")
	}

	if p.Remote != nil {
		if err := validateRemote(p.Remote); err != nil {
			return fmt.Errorf("remote: %w", err)
		}
	}
	if p.Cache != nil {
		if err := validateCache(p.Cache); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if p.History != nil && p.History.Enabled {
		if p.History.Driver != "sqlite3" && p.History.Driver != "postgres" {
			return fmt.Errorf("history driver must be sqlite3 or postgres, got %q", p.History.Driver)
		}
		if p.History.DSN == "" {
			return fmt.Errorf("history dsn cannot be empty")
		}
	}
	if p.RateLimit != nil {
		if err := validateRateLimit(p.RateLimit); err != nil {
			return err
		}
	}
	return nil
}

// validateOptimizer validates the optimal solution service configuration
func validateOptimizer(o *OptimizerConfig) error {
	if o.HTTPAddr == "" {
		return fmt.Errorf("http_addr cannot be empty")
	}
	for i, p := range o.SolutionPaths {
		if p == "" {
			return fmt.Errorf("solution_paths[%d] cannot be empty", i)
		}
	}
	if o.RateLimit != nil {
		if err := validateRateLimit(o.RateLimit); err != nil {
			return err
		}
	}
	return nil
}

func validateRemote(r *RemoteModel) error {
	u, err := url.Parse(r.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) URL, got %q", r.Endpoint)
	}
	if r.ModelName == "" {
		return fmt.Errorf("model_name cannot be empty")
	}
	if r.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms cannot be negative, got %d", r.TimeoutMs)
	}

	if r.Retries != nil {
		if r.Retries.MaxRetries < 0 {
			return fmt.Errorf("retries max_retries cannot be negative, got %d", r.Retries.MaxRetries)
		}
		validBackoffs := map[string]bool{
			"exponential": true,
			"linear":      true,
			"constant":    true,
		}
		if !validBackoffs[r.Retries.Backoff] {
			return fmt.Errorf("invalid backoff type: %s (must be exponential, linear, or constant)", r.Retries.Backoff)
		}
		if r.Retries.BaseMs < 0 {
			return fmt.Errorf("retries base_ms cannot be negative, got %d", r.Retries.BaseMs)
		}
	}

	if cb := r.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.FailureThreshold <= 0 {
			return fmt.Errorf("circuit_breaker failure_threshold must be positive, got %d", cb.FailureThreshold)
		}
		if cb.SuccessThreshold <= 0 {
			return fmt.Errorf("circuit_breaker success_threshold must be positive, got %d", cb.SuccessThreshold)
		}
		if cb.TimeoutMs <= 0 {
			return fmt.Errorf("circuit_breaker timeout_ms must be positive, got %d", cb.TimeoutMs)
		}
	}
	return nil
}

func validateCache(c *Cache) error {
	switch c.Backend {
	case "", "none", "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr cannot be empty for the redis backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be none, memory, or redis)", c.Backend)
	}
	ttl, err := c.GetTTL()
	if err != nil {
		return fmt.Errorf("invalid ttl %s: %w", c.TTL, err)
	}
	if ttl < 0 {
		return fmt.Errorf("ttl cannot be negative, got %s", c.TTL)
	}
	return nil
}

func validateRateLimit(r *RateLimit) error {
	if !r.Enabled {
		return nil
	}
	if r.RPS <= 0 {
		return fmt.Errorf("rate_limit rps must be positive, got %f", r.RPS)
	}
	if r.Burst <= 0 {
		return fmt.Errorf("rate_limit burst must be positive, got %d", r.Burst)
	}
	return nil
}
