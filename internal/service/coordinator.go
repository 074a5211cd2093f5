package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/data"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
	apperrors "github.com/masumi-agents/idea-evaluator/internal/errors"
	obserrors "github.com/masumi-agents/idea-evaluator/internal/observability/errors"
	"github.com/masumi-agents/idea-evaluator/internal/observability/metrics"
	"github.com/masumi-agents/idea-evaluator/internal/observability/notify"
)

const (
	defaultPipelineTimeout    = 30 * time.Minute
	defaultStatusCheckTimeout = 5 * time.Second
	defaultNotifyTimeout      = 10 * time.Second
	defaultMaxIdeaLength      = 5000
)

// errTransitionSkipped aborts a store update whose precondition no longer holds.
var errTransitionSkipped = errors.New("job transition skipped")

// ErrShuttingDown is returned for new work after Shutdown has begun.
var ErrShuttingDown = errors.New("job coordinator is shutting down")

// JobEventNotifier receives terminal job events.
type JobEventNotifier interface {
	NotifyJobEvent(ctx context.Context, event notify.JobEvent)
}

// JobCoordinatorOptions groups dependencies for JobCoordinator.
type JobCoordinatorOptions struct {
	Repo    core.JobRepository  // Required
	Gateway core.PaymentGateway // Required
	Runner  core.PipelineRunner // Required

	AgentIdentifier string
	Amounts         []model.Amount
	// MaxIdeaLength caps the startup idea in runes. Zero applies the default, negative disables it.
	MaxIdeaLength int

	Monitor            MonitorSettings
	PipelineTimeout    time.Duration
	StatusCheckTimeout time.Duration
	NotifyTimeout      time.Duration

	Notifier JobEventNotifier // Optional
	Metrics  metrics.Sink     // Optional
	Logger   *slog.Logger     // Optional
	Now      func() time.Time // Optional
}

// StartJobInput is a validated-on-entry job creation request.
type StartJobInput struct {
	PurchaserIdentifier string
	InputData           model.InputData
}

// JobCoordinator owns the job lifecycle: it creates payment requests, watches payments,
// runs the evaluation pipeline once a payment is confirmed and records the outcome.
//
// State machine: awaiting_payment -> running -> completed, with failed reachable from
// either non-terminal state. Every transition is a compare-and-set inside
// JobRepository.Update, so duplicate confirmations run the pipeline once.
type JobCoordinator struct {
	repo    core.JobRepository
	gateway core.PaymentGateway
	runner  core.PipelineRunner

	agentIdentifier    string
	amounts            []model.Amount
	maxIdeaLength      int
	monitorSettings    MonitorSettings
	pipelineTimeout    time.Duration
	statusCheckTimeout time.Duration
	notifyTimeout      time.Duration

	notifier JobEventNotifier
	metrics  metrics.Sink
	logger   *slog.Logger
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closed   bool
	monitors map[string]*PaymentMonitor
	inflight sync.WaitGroup

	checks singleflight.Group
}

// NewJobCoordinator constructs a JobCoordinator.
func NewJobCoordinator(opts JobCoordinatorOptions) (*JobCoordinator, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("PaymentGateway is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("PipelineRunner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Metrics
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	maxIdea := opts.MaxIdeaLength
	if maxIdea == 0 {
		maxIdea = defaultMaxIdeaLength
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &JobCoordinator{
		repo:               opts.Repo,
		gateway:            opts.Gateway,
		runner:             opts.Runner,
		agentIdentifier:    opts.AgentIdentifier,
		amounts:            append([]model.Amount(nil), opts.Amounts...),
		maxIdeaLength:      maxIdea,
		monitorSettings:    opts.Monitor.withDefaults(),
		pipelineTimeout:    durationOr(opts.PipelineTimeout, defaultPipelineTimeout),
		statusCheckTimeout: durationOr(opts.StatusCheckTimeout, defaultStatusCheckTimeout),
		notifyTimeout:      durationOr(opts.NotifyTimeout, defaultNotifyTimeout),
		notifier:           opts.Notifier,
		metrics:            sink,
		logger:             logger.With("component", "job_coordinator"),
		now:                now,
		baseCtx:            ctx,
		cancel:             cancel,
		monitors:           make(map[string]*PaymentMonitor),
	}

	c.logger.Debug("JobCoordinator initialized",
		"monitor_interval", c.monitorSettings.Interval,
		"monitor_max_duration", c.monitorSettings.MaxDuration,
		"pipeline_timeout", c.pipelineTimeout,
	)
	return c, nil
}

// MustNewJobCoordinator constructs a JobCoordinator and panics on error.
func MustNewJobCoordinator(opts JobCoordinatorOptions) *JobCoordinator {
	c, err := NewJobCoordinator(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobCoordinator: %v", err))
	}
	return c
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// StartJob validates the input, requests payment and stores the job in
// awaiting_payment. Nothing is stored when the gateway rejects the request.
func (c *JobCoordinator) StartJob(ctx context.Context, in StartJobInput) (*model.StartJobResponse, error) {
	purchaser := strings.TrimSpace(in.PurchaserIdentifier)
	if purchaser == "" {
		return nil, apperrors.ValidationField("identifier_from_purchaser", "identifier_from_purchaser is required")
	}
	if err := in.InputData.Validate(c.maxIdeaLength); err != nil {
		return nil, apperrors.ValidationField(model.StartupIdeaKey, err.Error())
	}
	if c.isClosed() {
		return nil, apperrors.Wrap(ErrShuttingDown, apperrors.ErrCodeInternal, "start job")
	}

	inputHash := in.InputData.Hash()
	req, err := c.gateway.CreatePaymentRequest(ctx, model.PaymentRequestParams{
		AgentIdentifier:         c.agentIdentifier,
		IdentifierFromPurchaser: purchaser,
		InputData:               in.InputData.Clone(),
		InputHash:               inputHash,
		Amounts:                 append([]model.Amount(nil), c.amounts...),
	})
	if err == nil && (req == nil || req.BlockchainIdentifier == "") {
		err = errors.New("gateway returned no payment identifier")
	}
	if err != nil {
		c.logger.WarnContext(ctx, "payment request failed", "error", err)
		return nil, apperrors.PaymentRequestFailed(err)
	}

	job := model.NewJob(model.NewJobParams{
		PaymentID:           req.BlockchainIdentifier,
		PurchaserIdentifier: purchaser,
		InputData:           in.InputData,
		InputHash:           inputHash,
		Now:                 c.now(),
	})
	if err := c.repo.Create(ctx, job); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "store job %s", job.ID)
	}

	if err := c.startMonitor(job, c.monitorSettings); err != nil {
		c.failJob(job.ID, "payment monitoring could not start", err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "start payment monitor")
	}

	c.metrics.JobCreated()
	c.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"payment_id", job.PaymentID,
	)

	resp := &model.StartJobResponse{
		Status:         "success",
		JobID:          job.ID,
		PaymentRequest: *req,
	}
	if resp.InputHash == "" {
		resp.InputHash = inputHash
	}
	if resp.IdentifierFromPurchaser == "" {
		resp.IdentifierFromPurchaser = purchaser
	}
	return resp, nil
}

// startMonitor registers the job's monitor and then starts it, so a confirmation can
// never arrive for an unregistered job.
func (c *JobCoordinator) startMonitor(job *model.Job, settings MonitorSettings) error {
	jobID := job.ID
	mon, err := NewPaymentMonitor(PaymentMonitorOptions{
		Gateway:   c.gateway,
		PaymentID: job.PaymentID,
		Settings:  settings,
		Logger:    c.logger,
		Metrics:   c.metrics,
		Callbacks: MonitorCallbacks{
			OnConfirmed: func(string) {
				if err := c.OnPaymentConfirmed(c.baseCtx, jobID); err != nil {
					c.logger.Error("payment confirmation handling failed", "job_id", jobID, "error", err)
				}
			},
			OnStatus: func(_ string, status model.PaymentStatus) {
				c.recordPaymentStatus(c.baseCtx, jobID, status)
			},
			OnExpired: func(string) {
				c.expireJob(jobID)
			},
		},
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShuttingDown
	}
	if _, exists := c.monitors[jobID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("monitor already registered for job %s", jobID)
	}
	c.monitors[jobID] = mon
	c.mu.Unlock()

	mon.Start(c.baseCtx)
	return nil
}

// ResumeStats counts what Resume did with the jobs it found.
type ResumeStats struct {
	Monitored   int
	Interrupted int
	Expired     int
}

// Resume adopts non-terminal jobs left in the store by an earlier process. Jobs still
// awaiting payment get a monitor for the rest of their payment window. Jobs that were
// running lost their pipeline with that process and are failed. Call it once before
// the coordinator accepts traffic; it assumes no other instance shares the store.
func (c *JobCoordinator) Resume(ctx context.Context) (ResumeStats, error) {
	var stats ResumeStats
	jobs, err := c.repo.ListActive(ctx)
	if err != nil {
		return stats, apperrors.Wrap(err, apperrors.ErrCodeInternal, "list active jobs")
	}

	for _, job := range jobs {
		switch job.Status {
		case model.JobStatusAwaitingPayment:
			if c.hasMonitor(job.ID) {
				continue
			}
			settings := c.monitorSettings
			if settings.MaxDuration > 0 {
				settings.MaxDuration -= c.now().Sub(job.CreatedAt)
				if settings.MaxDuration <= 0 {
					c.failJob(job.ID, fmt.Sprintf("payment not confirmed within %s", c.monitorSettings.MaxDuration), nil)
					stats.Expired++
					continue
				}
			}
			if err := c.startMonitor(job, settings); err != nil {
				if errors.Is(err, ErrShuttingDown) {
					return stats, apperrors.Wrap(err, apperrors.ErrCodeInternal, "resume jobs")
				}
				c.logger.WarnContext(ctx, "resume payment monitor failed", "job_id", job.ID, "error", err)
				continue
			}
			stats.Monitored++
		case model.JobStatusRunning:
			c.failJob(job.ID, "pipeline interrupted by restart", nil)
			stats.Interrupted++
		}
	}

	c.logger.InfoContext(ctx, "resumed persisted jobs",
		"monitored", stats.Monitored,
		"interrupted", stats.Interrupted,
		"expired", stats.Expired,
	)
	return stats, nil
}

// OnPaymentConfirmed moves the job to running, runs the pipeline and records the
// outcome. Calls for a job that already left awaiting_payment are no-ops.
func (c *JobCoordinator) OnPaymentConfirmed(ctx context.Context, jobID string) error {
	if !c.beginWork() {
		c.logger.WarnContext(ctx, "ignoring payment confirmation during shutdown", "job_id", jobID)
		return nil
	}
	defer c.inflight.Done()

	startedAt := c.now()
	job, err := c.repo.Update(ctx, jobID, func(j *model.Job) error {
		if !j.Status.CanTransitionTo(model.JobStatusRunning) {
			return errTransitionSkipped
		}
		j.Status = model.JobStatusRunning
		j.PaymentStatus = model.PaymentStatusConfirmed
		j.StartedAt = &startedAt
		j.UpdatedAt = startedAt
		return nil
	})
	switch {
	case errors.Is(err, errTransitionSkipped):
		c.logger.DebugContext(ctx, "duplicate payment confirmation ignored", "job_id", jobID)
		return nil
	case errors.Is(err, data.ErrJobNotFound):
		return apperrors.NotFoundf("job %s not found", jobID)
	case err != nil:
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "mark job %s running", jobID)
	}

	metrics.EmitJobLifecycle(c.metrics, metrics.JobMetric{
		Transition: string(model.JobStatusRunning),
		Result:     metrics.ResultSuccess,
	})
	c.logger.InfoContext(ctx, "running evaluation pipeline", "job_id", jobID, "payment_id", job.PaymentID)

	result, err := c.runPipeline(ctx, job.InputData.StartupIdea())
	duration := c.now().Sub(startedAt)
	if err != nil {
		c.failJobWithDuration(jobID, "pipeline failed", err, duration)
		return nil
	}

	digest := ResultDigest(result)
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.statusCheckTimeout)
	err = c.gateway.CompletePayment(completeCtx, job.PaymentID, digest)
	cancel()
	if err != nil {
		c.failJobWithDuration(jobID, "payment completion failed", err, duration)
		return nil
	}

	c.completeJob(jobID, result, digest, duration)
	return nil
}

func (c *JobCoordinator) runPipeline(ctx context.Context, idea string) (result string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, c.pipelineTimeout)
	defer cancel()
	stop := context.AfterFunc(c.baseCtx, cancel)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	result, err = c.runner.Run(runCtx, idea)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		err = apperrors.FromContext(err, "pipeline run")
	case err == nil && strings.TrimSpace(result) == "":
		err = errors.New("pipeline returned an empty result")
	}
	return result, err
}

func (c *JobCoordinator) completeJob(jobID, result, digest string, duration time.Duration) {
	ctx := context.WithoutCancel(c.baseCtx)
	finishedAt := c.now()

	job, err := c.repo.Update(ctx, jobID, func(j *model.Job) error {
		if !j.Status.CanTransitionTo(model.JobStatusCompleted) {
			return errTransitionSkipped
		}
		j.Status = model.JobStatusCompleted
		j.PaymentStatus = model.PaymentStatusCompleted
		r := result
		j.Result = &r
		j.CompletedAt = &finishedAt
		j.UpdatedAt = finishedAt
		return nil
	})
	c.stopMonitor(jobID)
	if err != nil {
		c.logger.ErrorContext(ctx, "record job completion failed", "job_id", jobID, "error", err)
		return
	}

	metrics.EmitJobLifecycle(c.metrics, metrics.JobMetric{
		Transition: string(model.JobStatusCompleted),
		Result:     metrics.ResultSuccess,
		Duration:   duration,
	})
	c.logger.InfoContext(ctx, "job completed", "job_id", jobID, "duration", duration)
	c.notify(notify.JobEvent{
		Kind:                notify.EventJobCompleted,
		JobID:               job.ID,
		PaymentID:           job.PaymentID,
		PurchaserIdentifier: job.PurchaserIdentifier,
		InputHash:           job.InputHash,
		ResultHash:          digest,
		OccurredAt:          finishedAt,
	})
}

func (c *JobCoordinator) failJob(jobID, reason string, cause error) {
	c.failJobWithDuration(jobID, reason, cause, 0)
}

// failJobWithDuration moves a non-terminal job to failed. PaymentStatus is left as last observed.
func (c *JobCoordinator) failJobWithDuration(jobID, reason string, cause error, duration time.Duration) {
	ctx := context.WithoutCancel(c.baseCtx)
	msg := reason
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", reason, cause)
	}
	failedAt := c.now()

	job, err := c.repo.Update(ctx, jobID, func(j *model.Job) error {
		if !j.Status.CanTransitionTo(model.JobStatusFailed) {
			return errTransitionSkipped
		}
		j.Status = model.JobStatusFailed
		j.Error = &msg
		j.CompletedAt = &failedAt
		j.UpdatedAt = failedAt
		return nil
	})
	c.stopMonitor(jobID)
	if err != nil {
		if !errors.Is(err, errTransitionSkipped) {
			c.logger.ErrorContext(ctx, "record job failure failed", "job_id", jobID, "error", err)
		}
		return
	}

	class := obserrors.Classify(cause)
	metrics.EmitJobLifecycle(c.metrics, metrics.JobMetric{
		Transition: string(model.JobStatusFailed),
		Result:     metrics.ResultError,
		Duration:   duration,
		Err:        cause,
	})
	c.logger.ErrorContext(ctx, "job failed", "job_id", jobID, "error", msg, "error_class", class)
	c.notify(notify.JobEvent{
		Kind:                notify.EventJobFailed,
		JobID:               job.ID,
		PaymentID:           job.PaymentID,
		PurchaserIdentifier: job.PurchaserIdentifier,
		InputHash:           job.InputHash,
		Error:               msg,
		ErrorClass:          class,
		OccurredAt:          failedAt,
	})
}

func (c *JobCoordinator) expireJob(jobID string) {
	job, err := c.repo.Get(c.baseCtx, jobID)
	if err != nil || job.Status != model.JobStatusAwaitingPayment {
		c.stopMonitor(jobID)
		return
	}
	c.failJob(jobID, fmt.Sprintf("payment not confirmed within %s", c.monitorSettings.MaxDuration), nil)
}

// recordPaymentStatus stores a monitor-observed status while the job is non-terminal.
func (c *JobCoordinator) recordPaymentStatus(ctx context.Context, jobID string, status model.PaymentStatus) {
	_, err := c.repo.Update(ctx, jobID, func(j *model.Job) error {
		if j.Status.Terminal() || j.PaymentStatus == status {
			return errTransitionSkipped
		}
		j.PaymentStatus = status
		j.UpdatedAt = c.now()
		return nil
	})
	if err != nil && !errors.Is(err, errTransitionSkipped) && ctx.Err() == nil {
		c.logger.WarnContext(ctx, "record payment status failed", "job_id", jobID, "error", err)
	}
}

// GetStatus returns the job snapshot. While the job is still monitored the payment
// status is refreshed first; a failing check reports unknown instead of an error.
func (c *JobCoordinator) GetStatus(ctx context.Context, jobID string) (model.JobStatusResponse, error) {
	job, err := c.repo.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return model.JobStatusResponse{}, apperrors.NotFoundf("job %s not found", jobID)
		}
		return model.JobStatusResponse{}, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "load job %s", jobID)
	}

	if job.Status.Terminal() || !c.hasMonitor(jobID) {
		return job.Snapshot(), nil
	}

	status := c.freshPaymentStatus(ctx, job.PaymentID)
	updated, err := c.repo.Update(ctx, jobID, func(j *model.Job) error {
		if j.Status.Terminal() {
			return errTransitionSkipped
		}
		if j.PaymentStatus != status {
			j.PaymentStatus = status
			j.UpdatedAt = c.now()
		}
		return nil
	})
	switch {
	case err == nil:
		job = updated
	case errors.Is(err, errTransitionSkipped):
		if latest, getErr := c.repo.Get(ctx, jobID); getErr == nil {
			job = latest
		}
	default:
		c.logger.WarnContext(ctx, "persist payment status failed", "job_id", jobID, "error", err)
		job.PaymentStatus = status
	}
	return job.Snapshot(), nil
}

// freshPaymentStatus checks the gateway once per payment at a time; concurrent
// callers share the result.
func (c *JobCoordinator) freshPaymentStatus(ctx context.Context, paymentID string) model.PaymentStatus {
	v, _, _ := c.checks.Do(paymentID, func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.statusCheckTimeout)
		defer cancel()

		status, err := c.gateway.CheckStatus(checkCtx, paymentID)
		if err != nil {
			c.logger.WarnContext(ctx, "payment status check failed",
				"payment_id", paymentID,
				"error", err,
				"error_class", obserrors.Classify(err),
			)
			status = model.PaymentStatusUnknown
		}
		c.metrics.PaymentCheck(string(status))
		return status, nil
	})
	return v.(model.PaymentStatus)
}

func (c *JobCoordinator) notify(event notify.JobEvent) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.baseCtx), c.notifyTimeout)
	defer cancel()
	c.notifier.NotifyJobEvent(ctx, event)
}

func (c *JobCoordinator) stopMonitor(jobID string) {
	c.mu.Lock()
	mon := c.monitors[jobID]
	delete(c.monitors, jobID)
	c.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
}

func (c *JobCoordinator) hasMonitor(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.monitors[jobID]
	return ok
}

// ActiveMonitors returns the number of registered payment monitors.
func (c *JobCoordinator) ActiveMonitors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.monitors)
}

func (c *JobCoordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *JobCoordinator) beginWork() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

// Shutdown stops all monitors and waits for their goroutines and for in-flight
// pipeline runs. When ctx expires first, the coordinator context is canceled so
// running pipelines abort.
func (c *JobCoordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	monitors := make([]*PaymentMonitor, 0, len(c.monitors))
	for id, mon := range c.monitors {
		monitors = append(monitors, mon)
		delete(c.monitors, id)
	}
	c.mu.Unlock()

	for _, mon := range monitors {
		mon.Stop()
	}

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		for _, mon := range monitors {
			<-mon.Done()
		}
		close(drained)
	}()

	defer c.cancel()
	select {
	case <-drained:
		c.logger.Info("job coordinator stopped", "stopped_monitors", len(monitors))
		return nil
	case <-ctx.Done():
		c.logger.Warn("job coordinator shutdown timed out; canceling running pipelines")
		return ctx.Err()
	}
}

// ResultDigest returns the hex sha256 of result. The gateway uses it to prove which
// result was delivered.
func ResultDigest(result string) string {
	sum := sha256.Sum256([]byte(result))
	return hex.EncodeToString(sum[:])
}
