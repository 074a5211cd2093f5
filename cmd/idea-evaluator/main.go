package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/masumi-agents/idea-evaluator/config"
	"github.com/masumi-agents/idea-evaluator/internal/bootstrap"
	"github.com/masumi-agents/idea-evaluator/internal/core"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.SetLogLevel(cfg.LogLevel)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	repo, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: &cfg,
		Repo:   repo,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close notifier sinks failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting idea evaluator",
		"dev", cfg.IsDev,
		"addr", cfg.HTTP.Addr,
		"payment_mode", cfg.Payment.Mode,
		"network", cfg.Payment.Network,
		"agent_identifier", cfg.Payment.AgentIdentifier,
		"pipeline_mode", cfg.Pipeline.Mode,
		"job_store", cfg.Store.Kind,
		"metrics", cfg.Observability.Metrics.Enabled)
}

// initInfrastructure connects the job store backend.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (core.JobRepository, redis.UniversalClient, error) {
	var redisClient redis.UniversalClient
	if cfg.Store.Kind == config.StoreRedis {
		client, err := bootstrap.ConnectRedis(ctx, cfg.Store.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		redisClient = client
	}

	repo, err := bootstrap.NewJobRepository(cfg.Store, redisClient)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, nil, fmt.Errorf("job store: %w", err)
	}
	return repo, redisClient, nil
}
