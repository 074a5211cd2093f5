// Package notify defines job lifecycle events and the sinks that deliver them.
package notify

import (
	"context"
	"time"
)

// EventKind names the terminal transition an event reports.
type EventKind string

const (
	EventJobCompleted EventKind = "completed"
	EventJobFailed    EventKind = "failed"
)

// Severity values recognised by downstream sinks.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// JobEvent is emitted when a job reaches a terminal state.
type JobEvent struct {
	Kind                EventKind         `json:"kind"`
	JobID               string            `json:"job_id"`
	PaymentID           string            `json:"payment_id,omitempty"`
	PurchaserIdentifier string            `json:"identifier_from_purchaser,omitempty"`
	InputHash           string            `json:"input_hash,omitempty"`
	ResultHash          string            `json:"result_hash,omitempty"`
	Error               string            `json:"error,omitempty"`
	ErrorClass          string            `json:"error_class,omitempty"`
	Severity            string            `json:"severity,omitempty"`
	OccurredAt          time.Time         `json:"occurred_at"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Sink delivers job events to one destination.
type Sink interface {
	SendJobEvent(ctx context.Context, event JobEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event JobEvent) error

// SendJobEvent implements Sink.
func (f SinkFunc) SendJobEvent(ctx context.Context, event JobEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
