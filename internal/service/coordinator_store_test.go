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

	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
	apperrors "github.com/masumi-agents/idea-evaluator/internal/errors"
	"github.com/masumi-agents/idea-evaluator/internal/mocks"
	"github.com/masumi-agents/idea-evaluator/internal/testutil"
)

type mockRepoCoordinator struct {
	coord  *JobCoordinator
	repo   *mocks.MockJobRepository
	gw     *mocks.MockPaymentGateway
	runner *mocks.MockPipelineRunner
	events *eventCapture
}

// newMockRepoCoordinator builds a coordinator over a mocked store so tests can fail
// individual writes.
func newMockRepoCoordinator(t *testing.T) *mockRepoCoordinator {
	t.Helper()
	ctrl := gomock.NewController(t)

	r := &mockRepoCoordinator{
		repo:   mocks.NewMockJobRepository(ctrl),
		gw:     mocks.NewMockPaymentGateway(ctrl),
		runner: mocks.NewMockPipelineRunner(ctrl),
		events: &eventCapture{},
	}
	r.coord = MustNewJobCoordinator(JobCoordinatorOptions{
		Repo:            r.repo,
		Gateway:         r.gw,
		Runner:          r.runner,
		AgentIdentifier: "agent-1",
		Monitor:         MonitorSettings{Interval: time.Hour},
		Notifier:        r.events,
	})
	t.Cleanup(func() { shutdownNow(t, r.coord) })
	return r
}

// applyTo returns an Update stub that runs the mutator against a copy of job.
func applyTo(job *model.Job) func(context.Context, string, core.JobMutator) (*model.Job, error) {
	return func(_ context.Context, _ string, mutate core.JobMutator) (*model.Job, error) {
		cp := job.Clone()
		if err := mutate(cp); err != nil {
			return nil, err
		}
		return cp, nil
	}
}

func TestStartJob_StoreFailure(t *testing.T) {
	r := newMockRepoCoordinator(t)
	r.gw.EXPECT().CreatePaymentRequest(gomock.Any(), gomock.Any()).Return(paymentRequest("pay-1"), nil)
	r.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	_, err := r.coord.StartJob(context.Background(), ideaInput("AI fitness app"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
	assert.Equal(t, 0, r.coord.ActiveMonitors())
}

func TestOnPaymentConfirmed_MarkRunningFailure(t *testing.T) {
	r := newMockRepoCoordinator(t)
	r.repo.EXPECT().Update(gomock.Any(), "job-1", gomock.Any()).Return(nil, errors.New("redis down"))

	// No Run expectation: the pipeline must not start without the running transition.
	err := r.coord.OnPaymentConfirmed(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
	assert.Empty(t, r.events.snapshot())
}

func TestGetStatus_PersistFailureStillReportsStatus(t *testing.T) {
	r := newMockRepoCoordinator(t)

	var stored *model.Job
	r.gw.EXPECT().CreatePaymentRequest(gomock.Any(), gomock.Any()).Return(paymentRequest("pay-1"), nil)
	r.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, j *model.Job) error {
		stored = j.Clone()
		return nil
	})
	resp, err := r.coord.StartJob(context.Background(), ideaInput("AI fitness app"))
	require.NoError(t, err)

	r.repo.EXPECT().Get(gomock.Any(), resp.JobID).DoAndReturn(func(context.Context, string) (*model.Job, error) {
		return stored.Clone(), nil
	})
	r.gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").Return(model.PaymentStatus("FundsLocked"), nil)
	r.repo.EXPECT().Update(gomock.Any(), resp.JobID, gomock.Any()).Return(nil, errors.New("redis down"))

	snap, err := r.coord.GetStatus(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAwaitingPayment, snap.Status)
	assert.Equal(t, model.PaymentStatus("FundsLocked"), snap.PaymentStatus)
}

func TestOnPaymentConfirmed_RecordCompletionFailure(t *testing.T) {
	r := newMockRepoCoordinator(t)
	job := testutil.NewJob("pay-1", "AI fitness app")

	gomock.InOrder(
		r.repo.EXPECT().Update(gomock.Any(), job.ID, gomock.Any()).DoAndReturn(applyTo(job)),
		r.runner.EXPECT().Run(gomock.Any(), "AI fitness app").Return("Evaluation: promising", nil),
		r.gw.EXPECT().CompletePayment(gomock.Any(), "pay-1", ResultDigest("Evaluation: promising")).Return(nil),
		r.repo.EXPECT().Update(gomock.Any(), job.ID, gomock.Any()).Return(nil, errors.New("redis down")),
	)

	require.NoError(t, r.coord.OnPaymentConfirmed(context.Background(), job.ID))
	assert.Empty(t, r.events.snapshot(), "a completion that was not stored must not be announced")
}

func TestStoreMutators_RespectStateMachine(t *testing.T) {
	r := newMockRepoCoordinator(t)
	completed := testutil.NewJob("pay-1", "idea")
	completed.Status = model.JobStatusCompleted

	r.repo.EXPECT().Update(gomock.Any(), completed.ID, gomock.Any()).DoAndReturn(applyTo(completed)).Times(2)

	// A completed job neither restarts nor fails.
	require.NoError(t, r.coord.OnPaymentConfirmed(context.Background(), completed.ID))
	r.coord.failJob(completed.ID, "late failure", nil)
	assert.Empty(t, r.events.snapshot())
}

func TestShutdown_WaitsForMonitorGoroutines(t *testing.T) {
	f := newCoordinatorFixture(t, func(o *JobCoordinatorOptions) {
		o.Monitor = MonitorSettings{Interval: 5 * time.Millisecond}
	})

	entered := make(chan struct{})
	var once sync.Once
	var returned atomic.Bool
	f.gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").DoAndReturn(
		func(ctx context.Context, _ string) (model.PaymentStatus, error) {
			once.Do(func() { close(entered) })
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			returned.Store(true)
			return "", ctx.Err()
		}).AnyTimes()
	f.startJob(t, "pay-1")
	<-entered

	shutdownNow(t, f.coord)
	assert.True(t, returned.Load(), "Shutdown returned while a status check was still running")
}
