package core

import (
	"context"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

// This file contains the ports the job service depends on.
// Adapters in internal/data and internal/adapters implement them.

// JobMutator changes a job inside JobRepository.Update. Returning an error aborts the write.
type JobMutator func(job *model.Job) error

// JobRepository stores job records keyed by id.
type JobRepository interface {
	// Create stores a new job. A duplicate id fails with data.ErrJobExists.
	Create(ctx context.Context, job *model.Job) error
	// Get returns a copy of the job or data.ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies mutate atomically with respect to other writers of the same id
	// and returns the stored result.
	Update(ctx context.Context, id string, mutate JobMutator) (*model.Job, error)
	// ListActive returns copies of every job that is awaiting payment or running.
	ListActive(ctx context.Context) ([]*model.Job, error)
}

// PaymentGateway is the remote payment service.
type PaymentGateway interface {
	CreatePaymentRequest(ctx context.Context, params model.PaymentRequestParams) (*model.PaymentRequest, error)
	CheckStatus(ctx context.Context, paymentID string) (model.PaymentStatus, error)
	// CompletePayment submits the result digest that releases the purchaser's funds.
	CompletePayment(ctx context.Context, paymentID, resultHash string) error
}

// PipelineRunner runs the idea evaluation and returns its textual result.
type PipelineRunner interface {
	Run(ctx context.Context, idea string) (string, error)
}
