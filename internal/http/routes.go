package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Jobs            JobService
	AgentIdentifier string
	Schema          model.InputSchema // Optional; defaults to the startup idea schema
	// Metrics exposes the registry at MetricsPath when set.
	Metrics     prometheus.Gatherer
	MetricsPath string
	Logger      *slog.Logger
}

// NewRouter builds the API mux.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	jobs := &JobHandlers{Svc: services.Jobs, Logger: logger}
	info := &InfoHandlers{AgentIdentifier: services.AgentIdentifier, Schema: services.Schema}

	registerJobRoutes(mux, jobs)
	registerInfoRoutes(mux, info)

	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.HandlerFor(services.Metrics, promhttp.HandlerOpts{}))
	}

	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /start_job", h.StartJob)
	mux.HandleFunc("GET /status", h.GetStatus)
}

func registerInfoRoutes(mux *http.ServeMux, h *InfoHandlers) {
	mux.HandleFunc("GET /availability", h.Availability)
	mux.HandleFunc("GET /input_schema", h.InputSchema)
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("HEAD /health", healthHandler)
}
