package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
	"github.com/masumi-agents/idea-evaluator/internal/observability/metrics"
)

const (
	defaultMonitorInterval       = 10 * time.Second
	defaultMonitorErrorThreshold = 5
	defaultMonitorCheckTimeout   = 10 * time.Second
)

// MonitorSettings tunes payment polling.
type MonitorSettings struct {
	Interval time.Duration
	// MaxDuration stops polling and reports expiry when exceeded. Zero disables the limit.
	MaxDuration time.Duration
	// ErrorThreshold is the number of consecutive failed checks after which the
	// reported status degrades from unknown to error.
	ErrorThreshold int
	CheckTimeout   time.Duration
}

func (s MonitorSettings) withDefaults() MonitorSettings {
	if s.Interval <= 0 {
		s.Interval = defaultMonitorInterval
	}
	if s.ErrorThreshold <= 0 {
		s.ErrorThreshold = defaultMonitorErrorThreshold
	}
	if s.CheckTimeout <= 0 {
		s.CheckTimeout = defaultMonitorCheckTimeout
	}
	if s.MaxDuration < 0 {
		s.MaxDuration = 0
	}
	return s
}

// MonitorCallbacks receive the outcomes of a PaymentMonitor. All callbacks run on the
// monitor goroutine and may be nil.
type MonitorCallbacks struct {
	// OnConfirmed runs at most once per monitor.
	OnConfirmed func(paymentID string)
	OnStatus    func(paymentID string, status model.PaymentStatus)
	OnExpired   func(paymentID string)
}

// PaymentMonitorOptions groups dependencies for PaymentMonitor.
type PaymentMonitorOptions struct {
	Gateway   core.PaymentGateway // Required
	PaymentID string              // Required
	Settings  MonitorSettings
	Callbacks MonitorCallbacks
	Logger    *slog.Logger
	Metrics   metrics.Sink
}

// PaymentMonitor polls the gateway for one payment until it is confirmed, expires or
// is stopped.
type PaymentMonitor struct {
	gateway   core.PaymentGateway
	paymentID string
	settings  MonitorSettings
	cb        MonitorCallbacks
	logger    *slog.Logger
	metrics   metrics.Sink

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPaymentMonitor constructs a monitor. It does not start polling.
func NewPaymentMonitor(opts PaymentMonitorOptions) (*PaymentMonitor, error) {
	if opts.Gateway == nil {
		return nil, errors.New("PaymentGateway is required")
	}
	if opts.PaymentID == "" {
		return nil, errors.New("payment id is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = metrics.NoopSink{}
	}

	return &PaymentMonitor{
		gateway:   opts.Gateway,
		paymentID: opts.PaymentID,
		settings:  opts.Settings.withDefaults(),
		cb:        opts.Callbacks,
		logger:    logger.With("component", "payment_monitor", "payment_id", opts.PaymentID),
		metrics:   sink,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the polling goroutine and returns immediately. Calling Start more
// than once, or after Stop, has no effect.
func (m *PaymentMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.metrics.MonitorStarted()
	go m.run(runCtx)
}

// Stop cancels polling. It never blocks, so it is safe to call from a callback.
// Once Stop returns no new OnConfirmed invocation begins.
func (m *PaymentMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	if !m.started {
		m.started = true
		close(m.done)
	}
}

// Done is closed when the polling goroutine has exited. Shutdown waits on it so no
// callback runs after the coordinator stops.
func (m *PaymentMonitor) Done() <-chan struct{} {
	return m.done
}

func (m *PaymentMonitor) run(ctx context.Context) {
	reason := metrics.StopCanceled
	defer func() {
		m.metrics.MonitorStopped(reason)
		close(m.done)
	}()

	ticker := time.NewTicker(m.settings.Interval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if m.settings.MaxDuration > 0 {
		timer := time.NewTimer(m.settings.MaxDuration)
		defer timer.Stop()
		expired = timer.C
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-expired:
			if m.finish() {
				reason = metrics.StopExpired
				m.logger.WarnContext(ctx, "payment monitoring expired",
					"max_duration", m.settings.MaxDuration)
				if m.cb.OnExpired != nil {
					m.cb.OnExpired(m.paymentID)
				}
			}
			return
		case <-ticker.C:
		}

		status, err := m.check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			status = model.PaymentStatusUnknown
			if failures >= m.settings.ErrorThreshold {
				status = model.PaymentStatusError
			}
			m.logger.WarnContext(ctx, "payment status check failed",
				"consecutive_failures", failures,
				"error", err,
			)
		} else {
			failures = 0
		}
		m.metrics.PaymentCheck(string(status))

		if status == model.PaymentStatusConfirmed {
			if m.finish() {
				reason = metrics.StopConfirmed
				m.logger.InfoContext(ctx, "payment confirmed")
				m.report(status)
				if m.cb.OnConfirmed != nil {
					m.cb.OnConfirmed(m.paymentID)
				}
			}
			return
		}
		if !m.isStopped() {
			m.report(status)
		}
	}
}

func (m *PaymentMonitor) check(ctx context.Context) (model.PaymentStatus, error) {
	checkCtx, cancel := context.WithTimeout(ctx, m.settings.CheckTimeout)
	defer cancel()
	return m.gateway.CheckStatus(checkCtx, m.paymentID)
}

func (m *PaymentMonitor) report(status model.PaymentStatus) {
	if m.cb.OnStatus != nil {
		m.cb.OnStatus(m.paymentID, status)
	}
}

// finish marks the monitor stopped and reports whether the caller won the right to
// deliver a terminal callback.
func (m *PaymentMonitor) finish() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	m.stopped = true
	return true
}

func (m *PaymentMonitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
