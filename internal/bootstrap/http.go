package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/net/netutil"

	"github.com/masumi-agents/idea-evaluator/config"
	httpx "github.com/masumi-agents/idea-evaluator/internal/http"
	"github.com/masumi-agents/idea-evaluator/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer builds the server and binds its listener. The caller serves on the
// returned listener and owns shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, net.Listener, error) {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return nil, nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	services := httpx.RouterServices{
		Jobs:            cfg.Services.Coordinator,
		AgentIdentifier: appCfg.Payment.AgentIdentifier,
		Logger:          logger,
	}
	if cfg.Services.Registry != nil {
		services.Metrics = cfg.Services.Registry
		services.MetricsPath = appCfg.Observability.Metrics.Path
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: services,
		HTTP:     appCfg.HTTP,
	})

	ln, err := listen(appCfg.HTTP)
	if err != nil {
		return nil, nil, err
	}

	server := &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      handler,
		ReadTimeout:  appCfg.HTTP.ReadTimeout,
		WriteTimeout: appCfg.HTTP.WriteTimeout,
		IdleTimeout:  appCfg.HTTP.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return server, ln, nil
}

// listen binds addr and caps concurrent connections when MaxConnections is set.
func listen(cfg config.HTTPConfig) (net.Listener, error) {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	return ln, nil
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	router := httpx.NewRouter(cfg.Services)

	// Order: Recover -> Logging -> MaxBody -> Router
	h := httpx.MaxBody(cfg.HTTP.MaxBodyBytes)(router)
	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)

	return h
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context     context.Context
	Server      *http.Server
	Coordinator *service.JobCoordinator
	Logger      *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server, then the job coordinator.
// Both share cfg.Context's deadline.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	if cfg.Server != nil {
		logger.Info("shutting down HTTP server")
		if err := cfg.Server.Shutdown(cfg.Context); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		} else {
			logger.Info("HTTP server stopped")
		}
	}

	if cfg.Coordinator != nil {
		if err := cfg.Coordinator.Shutdown(cfg.Context); err != nil {
			errs = append(errs, fmt.Errorf("job coordinator shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}
