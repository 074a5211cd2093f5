package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idea_evaluator"

// PrometheusSink implements Sink with Prometheus collectors.
type PrometheusSink struct {
	jobsCreated      prometheus.Counter
	transitions      *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	paymentChecks    *prometheus.CounterVec
	activeMonitors   prometheus.Gauge
	monitorStops     *prometheus.CounterVec
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates the collectors and registers them with reg.
// Registration failures are logged and the collector keeps working unregistered.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	if logger == nil {
		logger = slog.Default()
	}

	s := &PrometheusSink{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs accepted and waiting for payment.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Job state transitions by target state and result.",
		}, []string{"transition", "result", "error_class"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall-clock duration of evaluation pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		paymentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_checks_total",
			Help:      "Payment status checks by observed status.",
		}, []string{"status"}),
		activeMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payment_monitors_active",
			Help:      "Payment monitors currently polling.",
		}),
		monitorStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_monitor_stops_total",
			Help:      "Payment monitors stopped by reason.",
		}, []string{"reason"}),
	}

	for _, c := range []prometheus.Collector{
		s.jobsCreated, s.transitions, s.pipelineDuration,
		s.paymentChecks, s.activeMonitors, s.monitorStops,
	} {
		if err := reg.Register(c); err != nil {
			logger.Warn("metrics: register collector failed", "error", err)
		}
	}
	return s
}

func (s *PrometheusSink) JobCreated() { s.jobsCreated.Inc() }

func (s *PrometheusSink) JobTransition(transition, result, errorClass string) {
	s.transitions.WithLabelValues(transition, result, errorClass).Inc()
}

func (s *PrometheusSink) PipelineObserved(result string, d time.Duration) {
	s.pipelineDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (s *PrometheusSink) PaymentCheck(status string) {
	s.paymentChecks.WithLabelValues(status).Inc()
}

func (s *PrometheusSink) MonitorStarted() { s.activeMonitors.Inc() }

func (s *PrometheusSink) MonitorStopped(reason string) {
	s.activeMonitors.Dec()
	s.monitorStops.WithLabelValues(reason).Inc()
}
