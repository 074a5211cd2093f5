// Package model defines the core data types shared by the idea evaluator job system.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an evaluation job.
type JobStatus string

const (
	// JobStatusAwaitingPayment indicates the job exists and waits for the purchaser's payment.
	JobStatusAwaitingPayment JobStatus = "awaiting_payment"
	// JobStatusRunning indicates payment was confirmed and the pipeline is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the pipeline finished and the result was recorded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job ended with an error.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusAwaitingPayment || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether no further transitions are possible from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the job state machine:
// awaiting_payment -> running -> completed, with failed reachable from any non-terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusAwaitingPayment:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// PaymentStatus is the last payment state reported by the payment gateway.
// Provider-specific values are passed through unchanged.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusUnknown is reported when a status check failed.
	PaymentStatusUnknown PaymentStatus = "unknown"
	// PaymentStatusError is reported after repeated status check failures.
	PaymentStatusError PaymentStatus = "error"
)

// Job represents one startup idea evaluation request.
type Job struct {
	ID                  string        `json:"id"`
	Status              JobStatus     `json:"status"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	PaymentID           string        `json:"payment_id"`
	PurchaserIdentifier string        `json:"identifier_from_purchaser"`
	InputData           InputData     `json:"input_data"`
	InputHash           string        `json:"input_hash"`
	Result              *string       `json:"result,omitempty"`
	Error               *string       `json:"error,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
}

// NewJobParams groups the immutable fields a job is created with.
type NewJobParams struct {
	ID                  string
	PaymentID           string
	PurchaserIdentifier string
	InputData           InputData
	InputHash           string
	Now                 time.Time
}

// NewJobID returns a fresh, process-unique job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// NewJob builds a job in its initial awaiting_payment state.
func NewJob(p NewJobParams) *Job {
	id := p.ID
	if id == "" {
		id = NewJobID()
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &Job{
		ID:                  id,
		Status:              JobStatusAwaitingPayment,
		PaymentStatus:       PaymentStatusPending,
		PaymentID:           p.PaymentID,
		PurchaserIdentifier: p.PurchaserIdentifier,
		InputData:           p.InputData.Clone(),
		InputHash:           p.InputHash,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Clone returns a deep copy so callers cannot mutate stored state through shared pointers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.InputData = j.InputData.Clone()
	cp.Result = cloneString(j.Result)
	cp.Error = cloneString(j.Error)
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	return &cp
}

// JobStatusResponse is the externally visible snapshot of a job.
type JobStatusResponse struct {
	JobID         string        `json:"job_id"`
	Status        JobStatus     `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Result        *string       `json:"result"`
	Error         *string       `json:"error,omitempty"`
}

// Snapshot converts the job into its status response.
func (j *Job) Snapshot() JobStatusResponse {
	return JobStatusResponse{
		JobID:         j.ID,
		Status:        j.Status,
		PaymentStatus: j.PaymentStatus,
		Result:        cloneString(j.Result),
		Error:         cloneString(j.Error),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
