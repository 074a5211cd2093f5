package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/masumi-agents/idea-evaluator/config"
	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
	"github.com/masumi-agents/idea-evaluator/internal/observability/metrics"
	"github.com/masumi-agents/idea-evaluator/internal/service"
	"github.com/masumi-agents/idea-evaluator/internal/service/jobnotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Coordinator *service.JobCoordinator
	Notifier    *jobnotifier.Service
	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry

	closer io.Closer
}

// Close releases connections owned by the container's adapters.
func (c *ServiceContainer) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Repo   core.JobRepository
	Logger *slog.Logger

	// Gateway and Runner override the configured adapters when set.
	Gateway core.PaymentGateway
	Runner  core.PipelineRunner
}

// NewServices wires the job coordinator with its adapters and observability sinks.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	if deps.Repo == nil {
		return nil, errors.New("job repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	gateway := deps.Gateway
	if gateway == nil {
		gw, err := NewPaymentGateway(cfg.Payment, logger)
		if err != nil {
			return nil, err
		}
		gateway = gw
	}

	runner := deps.Runner
	if runner == nil {
		r, err := NewPipelineRunner(cfg.Pipeline, logger)
		if err != nil {
			return nil, err
		}
		runner = r
	}

	registry, sink := buildMetrics(cfg.Observability.Metrics, logger)
	notifier, closer := buildJobNotifier(logger, cfg.Observability)

	coordinator, err := service.NewJobCoordinator(service.JobCoordinatorOptions{
		Repo:            deps.Repo,
		Gateway:         gateway,
		Runner:          runner,
		AgentIdentifier: cfg.Payment.AgentIdentifier,
		Amounts:         []model.Amount{{Amount: cfg.Payment.Amount, Unit: cfg.Payment.Unit}},
		MaxIdeaLength:   cfg.Pipeline.MaxIdeaLength,
		Monitor: service.MonitorSettings{
			Interval:       cfg.Payment.Monitor.Interval,
			MaxDuration:    cfg.Payment.Monitor.MaxDuration,
			ErrorThreshold: cfg.Payment.Monitor.ErrorThreshold,
			CheckTimeout:   cfg.Payment.Monitor.StatusCheckTimeout,
		},
		PipelineTimeout:    cfg.Pipeline.Timeout,
		StatusCheckTimeout: cfg.Payment.Monitor.StatusCheckTimeout,
		NotifyTimeout:      cfg.Observability.Notifications.Timeout,
		Notifier:           notifier,
		Metrics:            sink,
		Logger:             logger,
	})
	if err != nil {
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close notifier sinks: %w", cerr))
		}
		return nil, fmt.Errorf("job coordinator: %w", err)
	}

	return &ServiceContainer{
		Coordinator: coordinator,
		Notifier:    notifier,
		Registry:    registry,
		closer:      closer,
	}, nil
}

// buildMetrics returns a private registry with runtime collectors and the job sink.
//
//nolint:ireturn // metrics.Sink is either the Prometheus sink or a no-op.
func buildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*prometheus.Registry, metrics.Sink) {
	if !cfg.Enabled {
		return nil, metrics.NoopSink{}
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewPrometheusSink(reg, logger.With("component", "metrics"))
}

// ServiceOrchestrationConfig contains what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown resumes persisted jobs, then serves HTTP until ctx is
// canceled, SIGINT or SIGTERM arrives or the server fails. It then drains the server
// and the job coordinator.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := cfg.Services.Coordinator.Resume(sigCtx); err != nil {
		return fmt.Errorf("resume jobs: %w", err)
	}

	server, ln, err := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		return gracefulStop(context.WithoutCancel(ctx), cfg, server, logger)
	})

	return g.Wait()
}

// gracefulStop stops accepting requests, then waits for in-flight jobs up to the
// configured shutdown timeout.
func gracefulStop(ctx context.Context, cfg *ServiceOrchestrationConfig, server *http.Server, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Config.HTTP.ShutdownTimeout)
	defer cancel()

	return ShutdownHTTPServer(ShutdownConfig{
		Context:     shutdownCtx,
		Server:      server,
		Coordinator: cfg.Services.Coordinator,
		Logger:      logger,
	})
}
