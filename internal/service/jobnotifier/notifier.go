// Package jobnotifier fans job lifecycle events out to notification sinks.
package jobnotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/masumi-agents/idea-evaluator/internal/observability/notify"
)

// SinkRegistration pairs a sink with a name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notifier.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches job events to all registered sinks concurrently.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a notifier. Nil sinks are ignored.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger: logger.With("component", "job_notifier"),
		sinks:  sinks,
	}
}

// NotifyJobEvent delivers event to every sink and waits for all deliveries.
// Delivery errors are logged, never returned.
func (s *Service) NotifyJobEvent(ctx context.Context, event notify.JobEvent) {
	if len(s.sinks) == 0 {
		return
	}

	if event.Severity == "" {
		event.Severity = notify.SeverityInfo
		if event.Kind == notify.EventJobFailed {
			event.Severity = notify.SeverityCritical
		}
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobEvent(ctx, event); err != nil {
				s.logger.ErrorContext(ctx, "job event delivery failed",
					"sink", entry.Name,
					"job_id", event.JobID,
					"kind", event.Kind,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether any sink is registered.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
