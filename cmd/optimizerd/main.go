package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cementai/plant-core/internal/policy"
	"github.com/cementai/plant-core/internal/server"
	"github.com/cementai/plant-core/internal/solutions"
	"github.com/cementai/plant-core/internal/watch"
	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Error("optimizer exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to the YAML config file (defaults built in)")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, config.ServiceOptimizer); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger.SetDefault(logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout))
	oc := cfg.Optimizer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := solutions.NewSource(oc.SolutionPaths)
	if path, _, err := source.Locate(); err == nil {
		logger.Info("solutions file found", "path", path)
	}

	httpSrv := &http.Server{
		Addr:              oc.HTTPAddr,
		Handler:           server.NewOptimizerServer(source, policy.NewRateLimitingPolicyFromConfig(oc.RateLimit)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", oc.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if oc.WatchSolutions {
		w, err := watch.New(source.Paths(), watch.DefaultDebounce, func(changed []string) {
			logger.Info("solutions file changed", "files", changed)
			source.Invalidate()
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
