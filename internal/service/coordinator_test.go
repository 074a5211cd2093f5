package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/masumi-agents/idea-evaluator/internal/data"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
	apperrors "github.com/masumi-agents/idea-evaluator/internal/errors"
	"github.com/masumi-agents/idea-evaluator/internal/mocks"
	"github.com/masumi-agents/idea-evaluator/internal/observability/notify"
	"github.com/masumi-agents/idea-evaluator/internal/testutil"
)

type coordinatorFixture struct {
	coord  *JobCoordinator
	store  *data.MemoryJobStore
	gw     *mocks.MockPaymentGateway
	runner *mocks.MockPipelineRunner
	events *eventCapture
}

type eventCapture struct {
	mu     sync.Mutex
	events []notify.JobEvent
}

func (e *eventCapture) NotifyJobEvent(_ context.Context, ev notify.JobEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventCapture) snapshot() []notify.JobEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notify.JobEvent(nil), e.events...)
}

// newCoordinatorFixture builds a coordinator whose monitors effectively never poll,
// so tests drive confirmation explicitly unless they override the settings.
func newCoordinatorFixture(t *testing.T, tweak func(*JobCoordinatorOptions)) *coordinatorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &coordinatorFixture{
		store:  data.NewMemoryJobStore(),
		gw:     mocks.NewMockPaymentGateway(ctrl),
		runner: mocks.NewMockPipelineRunner(ctrl),
		events: &eventCapture{},
	}
	opts := JobCoordinatorOptions{
		Repo:            f.store,
		Gateway:         f.gw,
		Runner:          f.runner,
		AgentIdentifier: "agent-1",
		Amounts:         []model.Amount{{Amount: "10000000", Unit: "lovelace"}},
		Monitor:         MonitorSettings{Interval: time.Hour},
		Notifier:        f.events,
	}
	if tweak != nil {
		tweak(&opts)
	}
	f.coord = MustNewJobCoordinator(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.coord.Shutdown(ctx)
	})
	return f
}

func paymentRequest(id string) *model.PaymentRequest {
	return &model.PaymentRequest{
		BlockchainIdentifier:      id,
		SubmitResultTime:          "1717171717000",
		UnlockTime:                "1717181717000",
		ExternalDisputeUnlockTime: "1717191717000",
		PayByTime:                 "1717161717000",
		AgentIdentifier:           "agent-1",
		SellerVkey:                "vkey",
		IdentifierFromPurchaser:   "buyer1",
		Amounts:                   []model.Amount{{Amount: "10000000", Unit: "lovelace"}},
	}
}

func ideaInput(idea string) StartJobInput {
	return StartJobInput{
		PurchaserIdentifier: "buyer1",
		InputData:           model.InputData{model.StartupIdeaKey: idea},
	}
}

func (f *coordinatorFixture) startJob(t *testing.T, paymentID string) string {
	t.Helper()
	f.gw.EXPECT().CreatePaymentRequest(gomock.Any(), gomock.Any()).Return(paymentRequest(paymentID), nil)
	resp, err := f.coord.StartJob(context.Background(), ideaInput("AI fitness app"))
	require.NoError(t, err)
	return resp.JobID
}

func TestNewJobCoordinator_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := data.NewMemoryJobStore()
	gw := mocks.NewMockPaymentGateway(ctrl)
	runner := mocks.NewMockPipelineRunner(ctrl)

	_, err := NewJobCoordinator(JobCoordinatorOptions{Gateway: gw, Runner: runner})
	require.Error(t, err)
	_, err = NewJobCoordinator(JobCoordinatorOptions{Repo: store, Runner: runner})
	require.Error(t, err)
	_, err = NewJobCoordinator(JobCoordinatorOptions{Repo: store, Gateway: gw})
	require.Error(t, err)
	assert.Panics(t, func() { MustNewJobCoordinator(JobCoordinatorOptions{}) })
}

func TestStartJob_CreatesAwaitingPaymentJob(t *testing.T) {
	f := newCoordinatorFixture(t, nil)

	var params model.PaymentRequestParams
	f.gw.EXPECT().CreatePaymentRequest(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p model.PaymentRequestParams) (*model.PaymentRequest, error) {
			params = p
			return paymentRequest("pay-1"), nil
		})

	resp, err := f.coord.StartJob(context.Background(), ideaInput("AI fitness app"))
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "pay-1", resp.BlockchainIdentifier)
	assert.Equal(t, "1717171717000", resp.SubmitResultTime)
	assert.Equal(t, "vkey", resp.SellerVkey)
	assert.Len(t, resp.InputHash, 64)

	assert.Equal(t, "agent-1", params.AgentIdentifier)
	assert.Equal(t, "buyer1", params.IdentifierFromPurchaser)
	assert.Equal(t, resp.InputHash, params.InputHash)
	assert.Equal(t, "AI fitness app", params.InputData.StartupIdea())

	job, err := f.store.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAwaitingPayment, job.Status)
	assert.Equal(t, model.PaymentStatusPending, job.PaymentStatus)
	assert.Equal(t, "pay-1", job.PaymentID)
	assert.Equal(t, 1, f.coord.ActiveMonitors())
}

func TestStartJob_UniqueIDsImmediatelyRetrievable(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	f.gw.EXPECT().CheckStatus(gomock.Any(), gomock.Any()).Return(model.PaymentStatusPending, nil).AnyTimes()

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id := f.startJob(t, "pay-"+string(rune('a'+i)))
		require.False(t, seen[id])
		seen[id] = true

		snap, err := f.coord.GetStatus(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, snap.JobID)
		assert.Equal(t, model.JobStatusAwaitingPayment, snap.Status)
	}
}

func TestStartJob_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input StartJobInput
		field string
	}{
		{"missing idea", StartJobInput{PurchaserIdentifier: "buyer1", InputData: model.InputData{}}, model.StartupIdeaKey},
		{"blank idea", ideaInput("   "), model.StartupIdeaKey},
		{"nil input", StartJobInput{PurchaserIdentifier: "buyer1"}, model.StartupIdeaKey},
		{"missing purchaser", StartJobInput{InputData: model.InputData{model.StartupIdeaKey: "x"}}, "identifier_from_purchaser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No gateway expectations: validation must fail before any remote call.
			f := newCoordinatorFixture(t, nil)

			_, err := f.coord.StartJob(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
			assert.Equal(t, 0, f.store.Len())

			_, err = f.coord.GetStatus(context.Background(), model.NewJobID())
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestStartJob_IdeaTooLong(t *testing.T) {
	f := newCoordinatorFixture(t, func(o *JobCoordinatorOptions) { o.MaxIdeaLength = 5 })

	_, err := f.coord.StartJob(context.Background(), ideaInput("a much longer idea"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStartJob_PaymentRequestFailed(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	f.gw.EXPECT().CreatePaymentRequest(gomock.Any(), gomock.Any()).Return(nil, errors.New("503 service unavailable"))

	_, err := f.coord.StartJob(context.Background(), ideaInput("AI fitness app"))
	require.Error(t, err)
	assert.True(t, apperrors.IsPaymentRequestFailed(err))
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.coord.ActiveMonitors())
}

func TestStartJob_EmptyPaymentIdentifier(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	f.gw.EXPECT().CreatePaymentRequest(gomock.Any(), gomock.Any()).Return(&model.PaymentRequest{}, nil)

	_, err := f.coord.StartJob(context.Background(), ideaInput("AI fitness app"))
	assert.True(t, apperrors.IsPaymentRequestFailed(err))
	assert.Equal(t, 0, f.store.Len())
}

func TestOnPaymentConfirmed_CompletesJob(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), "AI fitness app").Return("Evaluation: promising", nil)
	f.gw.EXPECT().CompletePayment(gomock.Any(), "pay-1", ResultDigest("Evaluation: promising")).Return(nil)

	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))

	snap, err := f.coord.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, snap.Status)
	assert.Equal(t, model.PaymentStatusCompleted, snap.PaymentStatus)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Evaluation: promising", *snap.Result)
	assert.Nil(t, snap.Error)
	assert.Equal(t, 0, f.coord.ActiveMonitors())

	events := f.events.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventJobCompleted, events[0].Kind)
	assert.Equal(t, ResultDigest("Evaluation: promising"), events[0].ResultHash)
}

func TestOnPaymentConfirmed_DuplicateRunsPipelineOnce(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	release := make(chan struct{})
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (string, error) {
			<-release
			return "Evaluation: promising", nil
		}).Times(1)
	f.gw.EXPECT().CompletePayment(gomock.Any(), "pay-1", gomock.Any()).Return(nil).Times(1)

	confirm := func() error { return f.coord.OnPaymentConfirmed(context.Background(), id) }
	var errs []error
	done := make(chan struct{})
	go func() {
		errs = testutil.RunConcurrent(confirm, confirm, confirm)
		close(done)
	}()

	require.NoError(t, testutil.Eventually(time.Second, func() bool {
		job, err := f.store.Get(context.Background(), id)
		return err == nil && job.Status == model.JobStatusRunning
	}))
	close(release)
	<-done

	for _, err := range errs {
		require.NoError(t, err)
	}
	// A late duplicate after completion is also a no-op.
	require.NoError(t, confirm())

	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Len(t, f.events.snapshot(), 1)
}

func TestOnPaymentConfirmed_PipelineFailure(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return("", errors.New("llm quota exceeded"))

	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))

	snap, err := f.coord.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, snap.Status)
	assert.Equal(t, model.PaymentStatusConfirmed, snap.PaymentStatus)
	assert.Nil(t, snap.Result)
	require.NotNil(t, snap.Error)
	assert.Contains(t, *snap.Error, "llm quota exceeded")
	assert.Equal(t, 0, f.coord.ActiveMonitors())

	events := f.events.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventJobFailed, events[0].Kind)
}

func TestOnPaymentConfirmed_PipelinePanicIsRecorded(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (string, error) { panic("nil crew") })

	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))

	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "pipeline panic: nil crew")
}

func TestOnPaymentConfirmed_EmptyResultFails(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return("  ", nil)

	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))
	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestOnPaymentConfirmed_CompletionFailure(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return("Evaluation: promising", nil)
	f.gw.EXPECT().CompletePayment(gomock.Any(), "pay-1", gomock.Any()).Return(errors.New("submit-result rejected"))

	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))

	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Nil(t, job.Result)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "payment completion failed")
}

func TestOnPaymentConfirmed_UnknownJob(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	err := f.coord.OnPaymentConfirmed(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPipelineTimeout(t *testing.T) {
	f := newCoordinatorFixture(t, func(o *JobCoordinatorOptions) { o.PipelineTimeout = 20 * time.Millisecond })
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))

	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "pipeline failed: pipeline run: context deadline exceeded", *job.Error)
	events := f.events.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "timeout", events[0].ErrorClass)
}

func TestGetStatus_UnknownJob(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	_, err := f.coord.GetStatus(context.Background(), model.NewJobID())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetStatus_RefreshesPaymentStatus(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").Return(model.PaymentStatus("FundsLocked"), nil)
	snap, err := f.coord.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatus("FundsLocked"), snap.PaymentStatus)

	f.gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").Return(model.PaymentStatus(""), errors.New("timeout"))
	snap, err = f.coord.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusUnknown, snap.PaymentStatus)
	assert.Equal(t, model.JobStatusAwaitingPayment, snap.Status)
}

func TestGetStatus_TerminalJobSkipsGateway(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return("", errors.New("boom"))
	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))

	// No CheckStatus expectation: a terminal job has no monitor to refresh.
	snap, err := f.coord.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, snap.Status)
}

func TestMonitorExpiryFailsJob(t *testing.T) {
	f := newCoordinatorFixture(t, func(o *JobCoordinatorOptions) {
		o.Monitor = MonitorSettings{Interval: 5 * time.Millisecond, MaxDuration: 40 * time.Millisecond}
	})
	f.gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").Return(model.PaymentStatusPending, nil).AnyTimes()
	id := f.startJob(t, "pay-1")

	require.NoError(t, testutil.Eventually(2*time.Second, func() bool {
		job, err := f.store.Get(context.Background(), id)
		return err == nil && job.Status == model.JobStatusFailed
	}))

	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "payment not confirmed within 40ms")
	assert.Equal(t, 0, f.coord.ActiveMonitors())
}

// Scenario: buyer1 submits "AI fitness app", the gateway confirms payment and the
// pipeline answers "Evaluation: promising".
func TestScenario_PaymentConfirmedThroughMonitor(t *testing.T) {
	f := newCoordinatorFixture(t, func(o *JobCoordinatorOptions) {
		o.Monitor = MonitorSettings{Interval: 5 * time.Millisecond}
	})

	var paid atomic.Bool
	f.gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").DoAndReturn(
		func(context.Context, string) (model.PaymentStatus, error) {
			if paid.Load() {
				return model.PaymentStatusConfirmed, nil
			}
			return model.PaymentStatusPending, nil
		}).AnyTimes()

	release := make(chan struct{})
	f.runner.EXPECT().Run(gomock.Any(), "AI fitness app").DoAndReturn(
		func(context.Context, string) (string, error) {
			<-release
			return "Evaluation: promising", nil
		})
	f.gw.EXPECT().CompletePayment(gomock.Any(), "pay-1", ResultDigest("Evaluation: promising")).Return(nil)

	id := f.startJob(t, "pay-1")
	ctx := context.Background()

	snap, err := f.coord.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAwaitingPayment, snap.Status)
	assert.Nil(t, snap.Result)

	paid.Store(true)
	var observed []model.JobStatus
	observe := func(s model.JobStatus) {
		if len(observed) == 0 || observed[len(observed)-1] != s {
			observed = append(observed, s)
		}
	}
	observe(snap.Status)

	require.NoError(t, testutil.Eventually(2*time.Second, func() bool {
		snap, err = f.coord.GetStatus(ctx, id)
		require.NoError(t, err)
		observe(snap.Status)
		return snap.Status == model.JobStatusRunning
	}))
	close(release)

	require.NoError(t, testutil.Eventually(2*time.Second, func() bool {
		snap, err = f.coord.GetStatus(ctx, id)
		require.NoError(t, err)
		observe(snap.Status)
		return snap.Status == model.JobStatusCompleted
	}))

	assert.Equal(t, []model.JobStatus{
		model.JobStatusAwaitingPayment, model.JobStatusRunning, model.JobStatusCompleted,
	}, observed)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Evaluation: promising", *snap.Result)

	// The result is never overwritten by later polling.
	again, err := f.coord.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Evaluation: promising", *again.Result)
}

func TestShutdown_StopsMonitorsAndRejectsWork(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")
	require.Equal(t, 1, f.coord.ActiveMonitors())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.coord.Shutdown(ctx))
	assert.Equal(t, 0, f.coord.ActiveMonitors())

	_, err := f.coord.StartJob(context.Background(), ideaInput("late idea"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShuttingDown)

	// Confirmations arriving after shutdown are dropped without running the pipeline.
	require.NoError(t, f.coord.OnPaymentConfirmed(context.Background(), id))
}

func TestShutdown_TimesOutOnLongPipeline(t *testing.T) {
	f := newCoordinatorFixture(t, nil)
	id := f.startJob(t, "pay-1")

	started := make(chan struct{})
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		})

	confirmed := make(chan error, 1)
	go func() { confirmed <- f.coord.OnPaymentConfirmed(context.Background(), id) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.coord.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case err := <-confirmed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline was not canceled by shutdown")
	}

	job, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "canceled", f.events.snapshot()[0].ErrorClass)
}

func TestResultDigest(t *testing.T) {
	d := ResultDigest("Evaluation: promising")
	assert.Len(t, d, 64)
	assert.Equal(t, d, ResultDigest("Evaluation: promising"))
	assert.NotEqual(t, d, ResultDigest("Evaluation: weak"))
}
