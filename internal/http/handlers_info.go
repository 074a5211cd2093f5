package httpx

import (
	"net/http"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

const healthResponse = `{"status":"healthy"}`

// InfoHandlers serves the static agent description endpoints.
type InfoHandlers struct {
	AgentIdentifier string
	Message         string
	Schema          model.InputSchema
}

const defaultAvailabilityMessage = "Startup idea evaluator is ready to accept jobs"

// Availability handles GET /availability.
func (h *InfoHandlers) Availability(w http.ResponseWriter, _ *http.Request) {
	msg := h.Message
	if msg == "" {
		msg = defaultAvailabilityMessage
	}
	WriteJSON(w, http.StatusOK, model.Availability{
		Status:          "available",
		AgentIdentifier: h.AgentIdentifier,
		Message:         msg,
	})
}

// InputSchema handles GET /input_schema.
func (h *InfoHandlers) InputSchema(w http.ResponseWriter, _ *http.Request) {
	schema := h.Schema
	if len(schema.InputData) == 0 {
		schema = model.DefaultInputSchema()
	}
	WriteJSON(w, http.StatusOK, schema)
}

// healthHandler reports liveness. HEAD requests get headers only.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(healthResponse))
}
