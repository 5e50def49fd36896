package config

import "time"

// Config represents the configuration shared by the predictor and optimizer services
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // json or text
	Predictor PredictorConfig `yaml:"predictor"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// PredictorConfig configures the efficiency prediction service
type PredictorConfig struct {
	HTTPAddr       string       `yaml:"http_addr"`
	GRPCAddr       string       `yaml:"grpc_addr"`
	ModelPath      string       `yaml:"model_path"`
	ScalerPath     string       `yaml:"scaler_path"`
	WatchArtifacts bool         `yaml:"watch_artifacts"`
	Remote         *RemoteModel `yaml:"remote,omitempty"`
	Cache          *Cache       `yaml:"cache,omitempty"`
	History        *History     `yaml:"history,omitempty"`
	RateLimit      *RateLimit   `yaml:"rate_limit,omitempty"`
}

// OptimizerConfig configures the optimal solution service
type OptimizerConfig struct {
	HTTPAddr       string     `yaml:"http_addr"`
	SolutionPaths  []string   `yaml:"solution_paths"`
	WatchSolutions bool       `yaml:"watch_solutions"`
	RateLimit      *RateLimit `yaml:"rate_limit,omitempty"`
}

// RemoteModel points the predictor at a KServe v2 inference server
// instead of a local model artifact.
type RemoteModel struct {
	Endpoint       string          `yaml:"endpoint"`
	ModelName      string          `yaml:"model_name"`
	ModelVersion   string          `yaml:"model_version,omitempty"`
	ModelType      string          `yaml:"model_type,omitempty"`
	InputName      string          `yaml:"input_name,omitempty"`
	TimeoutMs      int             `yaml:"timeout_ms"`
	Retries        *RetryPolicy    `yaml:"retries,omitempty"`
	CircuitBreaker *CircuitBreaker `yaml:"circuit_breaker,omitempty"`
}

// Timeout returns the request timeout for the remote model
func (r *RemoteModel) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// RetryPolicy represents retry configuration
type RetryPolicy struct {
	Enabled    bool   `yaml:"enabled"`
	MaxRetries int    `yaml:"max_retries"`
	Backoff    string `yaml:"backoff"` // exponential, linear, constant
	BaseMs     int    `yaml:"base_ms"`
	MaxMs      int    `yaml:"max_ms,omitempty"`
}

// CircuitBreaker represents circuit breaker configuration
type CircuitBreaker struct {
	Enabled          bool `yaml:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold"`
	SuccessThreshold int  `yaml:"success_threshold"`
	TimeoutMs        int  `yaml:"timeout_ms"`
}

// Cache configures the prediction cache
type Cache struct {
	Backend       string `yaml:"backend"` // none, memory, redis
	TTL           string `yaml:"ttl"`     // e.g., "10m"
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	KeyPrefix     string `yaml:"key_prefix,omitempty"`
}

// GetTTL parses the TTL string
func (c *Cache) GetTTL() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.TTL)
}

// History configures the prediction history store
type History struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // sqlite3 or postgres
	DSN     string `yaml:"dsn"`
}

// RateLimit configures per-client request rate limiting
type RateLimit struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// DefaultSolutionPaths are searched in order for the optimizer output.
var DefaultSolutionPaths = []string{
	"notebooks/top_nonlinear_solutions.json",
	"./notebooks/top_nonlinear_solutions.json",
	"../notebooks/top_nonlinear_solutions.json",
	"top_nonlinear_solutions.json",
	"/app/notebooks/top_nonlinear_solutions.json",
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Predictor: PredictorConfig{
			HTTPAddr:   ":5000",
			GRPCAddr:   ":50051",
			ModelPath:  "notebooks/best_nonlinear_model.json",
			ScalerPath: "notebooks/feature_scaler.json",
		},
		Optimizer: OptimizerConfig{
			HTTPAddr:      ":5001",
			SolutionPaths: append([]string(nil), DefaultSolutionPaths...),
		},
	}
}
