package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/cementai/plant-core/internal/cache"
	"github.com/cementai/plant-core/internal/history"
	"github.com/cementai/plant-core/internal/model"
	"github.com/cementai/plant-core/internal/policy"
	"github.com/cementai/plant-core/internal/predict"
	"github.com/cementai/plant-core/internal/server"
	"github.com/cementai/plant-core/internal/watch"
	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Error("predictor exited", "error", err)
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
	if err := config.ApplyEnv(cfg, config.ServicePredictor); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger.SetDefault(logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout))
	pc := cfg.Predictor

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	predictionCache, err := cache.New(pc.Cache)
	if err != nil {
		return err
	}
	defer predictionCache.Close()
	if r, ok := predictionCache.(*cache.Redis); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := r.Ping(pingCtx); err != nil {
			logger.Warn("redis cache unreachable, predictions will not be cached until it recovers", "addr", pc.Cache.RedisAddr, "error", err)
		}
		cancel()
	}

	opts := predict.Options{
		ModelPath:  pc.ModelPath,
		ScalerPath: pc.ScalerPath,
		Remote:     pc.Remote,
		Cache:      predictionCache,
	}

	// history stays nil when disabled so /predictions answers 404
	var historyReader server.HistoryReader
	if pc.History != nil && pc.History.Enabled {
		store, err := history.Open(ctx, pc.History)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.History = store
		historyReader = store
		logger.Info("prediction history enabled", "driver", pc.History.Driver)
	}

	svc := predict.NewService(opts)
	if err := svc.Load(); err != nil {
		logger.Warn("starting without a model", "error", err)
	}
	if pc.Remote != nil {
		readyCtx, cancel := context.WithTimeout(ctx, pc.Remote.Timeout())
		if err := model.NewRemote(pc.Remote).Ready(readyCtx); err != nil {
			logger.Warn("remote model not ready", "endpoint", pc.Remote.Endpoint, "error", err)
		}
		cancel()
	}

	health := server.NewHealthServer(svc)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	grpcLis, err := net.Listen("tcp", pc.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", pc.GRPCAddr, "error", err)
		return err
	}

	httpSrv := &http.Server{
		Addr:              pc.HTTPAddr,
		Handler:           server.NewPredictorServer(svc, historyReader, policy.NewRateLimitingPolicyFromConfig(pc.RateLimit)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", pc.GRPCAddr)
		return grpcServer.Serve(grpcLis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", pc.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if pc.WatchArtifacts {
		w, err := watch.New(svc.Watched(), watch.DefaultDebounce, func(changed []string) {
			logger.Info("model artifacts changed, reloading", "files", changed)
			if err := svc.Reload(); err != nil {
				logger.Error("artifact reload failed", "error", err)
			}
			health.Sync()
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

		health.Shutdown()
		grpcServer.GracefulStop()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
