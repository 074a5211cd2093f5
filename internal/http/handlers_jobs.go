// Package httpx provides the HTTP API of the idea evaluator agent.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
	apperrors "github.com/masumi-agents/idea-evaluator/internal/errors"
	"github.com/masumi-agents/idea-evaluator/internal/service"
)

// JobService is the subset of the job coordinator the handlers need.
type JobService interface {
	StartJob(ctx context.Context, in service.StartJobInput) (*model.StartJobResponse, error)
	GetStatus(ctx context.Context, jobID string) (model.JobStatusResponse, error)
}

// JobHandlers provides HTTP handlers for job creation and status queries.
type JobHandlers struct {
	Svc    JobService
	Logger *slog.Logger
}

// StartJobRequest is the POST /start_job body. InputData accepts an object or a list of
// {key, value} pairs.
type StartJobRequest struct {
	IdentifierFromPurchaser string          `json:"identifier_from_purchaser"`
	InputData               json.RawMessage `json:"input_data"`
}

// StartJob handles POST /start_job.
func (h *JobHandlers) StartJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	input, err := model.ParseInputData(req.InputData)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_input",
			Err:     err,
			Field:   "input_data",
		})
		return
	}

	resp, err := h.Svc.StartJob(r.Context(), service.StartJobInput{
		PurchaserIdentifier: req.IdentifierFromPurchaser,
		InputData:           input,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetStatus handles GET /status?job_id=.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("job_id"))
	if jobID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_job_id",
			Err:     errors.New("job_id query parameter is required"),
		})
		return
	}

	snap, err := h.Svc.GetStatus(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, snap)
}

func (h *JobHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.IsValidation(err):
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_input",
			Err:     err,
			Field:   apperrors.GetField(err),
		})
	case apperrors.IsPaymentRequestFailed(err):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "payment_request_failed", Err: err})
	case apperrors.IsNotFound(err):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: err})
	default:
		h.logger().ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal_error",
			Err:     errors.New("internal server error"),
		})
	}
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
