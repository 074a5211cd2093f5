// Package metrics records job lifecycle and payment monitoring metrics.
package metrics

import (
	"time"

	obserrors "github.com/masumi-agents/idea-evaluator/internal/observability/errors"
)

// Sink records job service metrics. Implementations must not block.
type Sink interface {
	JobCreated()
	JobTransition(transition, result, errorClass string)
	PipelineObserved(result string, duration time.Duration)
	PaymentCheck(result string)
	MonitorStarted()
	MonitorStopped(reason string)
}

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Monitor stop reasons.
const (
	StopConfirmed = "confirmed"
	StopExpired   = "expired"
	StopCanceled  = "canceled"
)

// JobMetric captures one job lifecycle event.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle records a transition and, when a duration is set, the pipeline timing.
func EmitJobLifecycle(sink Sink, in JobMetric) {
	if sink == nil {
		return
	}

	class := "none"
	if in.Err != nil && in.Result == ResultError {
		class = obserrors.Classify(in.Err)
	}
	sink.JobTransition(in.Transition, in.Result, class)

	if in.Duration > 0 {
		sink.PipelineObserved(in.Result, in.Duration)
	}
}
