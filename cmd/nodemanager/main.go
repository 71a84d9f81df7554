package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sayfpack13/TrustQuery-sub002/internal/config"
	"github.com/sayfpack13/TrustQuery-sub002/internal/handler"
	"github.com/sayfpack13/TrustQuery-sub002/internal/health"
	"github.com/sayfpack13/TrustQuery-sub002/internal/materializer"
	"github.com/sayfpack13/TrustQuery-sub002/internal/metrics"
	"github.com/sayfpack13/TrustQuery-sub002/internal/reconciler"
	"github.com/sayfpack13/TrustQuery-sub002/internal/registry"
	"github.com/sayfpack13/TrustQuery-sub002/internal/server"
	"github.com/sayfpack13/TrustQuery-sub002/internal/service"
	"github.com/sayfpack13/TrustQuery-sub002/internal/supervisor"
	"github.com/sayfpack13/TrustQuery-sub002/internal/sysinfo"
	"github.com/sayfpack13/TrustQuery-sub002/internal/validation"
	"go.uber.org/zap"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting node manager",
		zap.String("registry_backend", cfg.Registry.Backend),
		zap.String("base_dir", cfg.Nodes.BaseDir),
		zap.Int("port", cfg.Server.Port))

	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize registry", zap.Error(err))
	}
	defer reg.Close()
	logger.Info("Registry initialized")

	m := metrics.NewMetrics()

	validator := validation.NewValidator(sysinfo.NewProcMemory(), validation.Options{
		MaxHeapFraction:   cfg.Nodes.MaxHeapFraction,
		PortSearchWindow:  cfg.Suggestions.PortSearchWindow,
		MaxNameCandidates: cfg.Suggestions.MaxNameCandidates,
		RequireRole:       cfg.Policy.RequireRole,
	})
	mat := materializer.New(logger)
	sup := supervisor.NewExecSupervisor(cfg.Nodes.EngineBinary, cfg.Nodes.ProbeTimeout, logger)
	rec := reconciler.New(sup, nil, logger)

	// lifetime bounds background reconciliation loops; cancelled on shutdown
	lifetime, stopLifetime := context.WithCancel(context.Background())
	defer stopLifetime()

	orchestrator := service.New(lifetime, reg, validator, mat, sup, rec, cfg.Reconcile, m, logger)
	handlers := handler.NewHandlers(orchestrator, m, logger, cfg.Server.WriteTimeout, cfg.Server.ValidateTimeout)
	healthChecker := health.NewHealthChecker(reg, cfg.Nodes.BaseDir, logger)

	srv := server.NewServer(cfg, handlers, healthChecker, m, logger)
	srv.SetupRoutes()

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	stopLifetime()

	logger.Info("Node manager stopped")
}

// buildLogger constructs the process logger from configuration
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

// buildRegistry constructs the configured registry backend
func buildRegistry(cfg *config.Config, logger *zap.Logger) (registry.Registry, error) {
	switch cfg.Registry.Backend {
	case "memory":
		return registry.NewMemoryRegistry(logger), nil
	case "redis":
		return registry.NewRedisRegistry(
			cfg.Registry.Redis.Host,
			cfg.Registry.Redis.Port,
			cfg.Registry.Redis.Password,
			cfg.Registry.Redis.DB,
			cfg.Registry.Redis.KeyPrefix,
			logger,
		)
	case "postgres":
		return registry.NewPostgresRegistry(
			cfg.Registry.Postgres.Host,
			cfg.Registry.Postgres.Port,
			cfg.Registry.Postgres.Database,
			cfg.Registry.Postgres.User,
			cfg.Registry.Postgres.Password,
			cfg.Registry.Postgres.MaxConnections,
			cfg.Registry.Postgres.MinConnections,
			logger,
		)
	default:
		return nil, fmt.Errorf("unsupported registry backend: %s", cfg.Registry.Backend)
	}
}
