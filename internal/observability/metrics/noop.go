package metrics

import "time"

// NoopSink discards all metrics. Used when metrics are disabled.
type NoopSink struct{}

func (NoopSink) JobCreated()                                 {}
func (NoopSink) JobTransition(_, _, _ string)                {}
func (NoopSink) PipelineObserved(_ string, _ time.Duration) {}
func (NoopSink) PaymentCheck(_ string)                       {}
func (NoopSink) MonitorStarted()                             {}
func (NoopSink) MonitorStopped(_ string)                     {}
