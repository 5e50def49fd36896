package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Service names accepted by ApplyEnv.
const (
	ServicePredictor = "predictor"
	ServiceOptimizer = "optimizer"
)

// EnvPrefix is prepended to every override variable, e.g.
// CEMENT_PREDICTOR_MODEL_PATH.
const EnvPrefix = "CEMENT"

// ApplyEnv overlays environment variables onto cfg and re-validates it.
// The bare PORT variable (set by container platforms) overrides the HTTP
// listen address of the given service.
func ApplyEnv(cfg *Config, service string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", "PORT"); err != nil {
		return fmt.Errorf("bind PORT: %w", err)
	}

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	setString("log_level", &cfg.LogLevel)
	setString("log_format", &cfg.LogFormat)
	setString("predictor.http_addr", &cfg.Predictor.HTTPAddr)
	setString("predictor.grpc_addr", &cfg.Predictor.GRPCAddr)
	setString("predictor.model_path", &cfg.Predictor.ModelPath)
	setString("predictor.scaler_path", &cfg.Predictor.ScalerPath)
	setString("optimizer.http_addr", &cfg.Optimizer.HTTPAddr)

	if v.IsSet("predictor.watch_artifacts") {
		cfg.Predictor.WatchArtifacts = v.GetBool("predictor.watch_artifacts")
	}
	if v.IsSet("optimizer.watch_solutions") {
		cfg.Optimizer.WatchSolutions = v.GetBool("optimizer.watch_solutions")
	}
	if v.IsSet("optimizer.solution_paths") {
		cfg.Optimizer.SolutionPaths = splitList(v.GetString("optimizer.solution_paths"))
	}
	if v.IsSet("predictor.cache.redis_addr") {
		if cfg.Predictor.Cache == nil {
			cfg.Predictor.Cache = &Cache{Backend: "redis"}
		}
		cfg.Predictor.Cache.RedisAddr = v.GetString("predictor.cache.redis_addr")
	}
	if v.IsSet("predictor.history.dsn") && cfg.Predictor.History != nil {
		cfg.Predictor.History.DSN = v.GetString("predictor.history.dsn")
	}

	if v.IsSet("port") {
		port := strings.TrimSpace(v.GetString("port"))
		if port != "" {
			switch service {
			case ServicePredictor:
				cfg.Predictor.HTTPAddr = ":" + port
			case ServiceOptimizer:
				cfg.Optimizer.HTTPAddr = ":" + port
			default:
				return fmt.Errorf("unknown service %q", service)
			}
		}
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config after env overrides: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
