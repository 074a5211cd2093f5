// Package mocks provides gomock implementations of the job service ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	gw := mocks.NewMockPaymentGateway(ctrl)
//	gw.EXPECT().CheckStatus(gomock.Any(), "pay-1").Return(model.PaymentStatusPending, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/masumi-agents/idea-evaluator/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=payment_gateway_mock.go github.com/masumi-agents/idea-evaluator/internal/core PaymentGateway
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=pipeline_runner_mock.go github.com/masumi-agents/idea-evaluator/internal/core PipelineRunner
