// Package devpayment provides an in-process core.PaymentGateway for local development.
// Payments confirm themselves once ConfirmAfter has elapsed.
package devpayment

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

const (
	defaultConfirmAfter = 5 * time.Second
	unlockWindow        = 24 * time.Hour
	disputeWindow       = 48 * time.Hour
	payByWindow         = 12 * time.Hour
	submitWindow        = 12 * time.Hour
)

// Options configures Gateway.
type Options struct {
	ConfirmAfter time.Duration
	SellerVkey   string
	Now          func() time.Time
}

type payment struct {
	createdAt  time.Time
	resultHash string
	completed  bool
}

// Gateway records payment requests in memory.
type Gateway struct {
	confirmAfter time.Duration
	sellerVkey   string
	now          func() time.Time

	mu       sync.Mutex
	payments map[string]*payment
}

// New returns a Gateway.
func New(opts Options) *Gateway {
	confirm := opts.ConfirmAfter
	if confirm <= 0 {
		confirm = defaultConfirmAfter
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	vkey := opts.SellerVkey
	if vkey == "" {
		vkey = "dev-seller-vkey"
	}
	return &Gateway{
		confirmAfter: confirm,
		sellerVkey:   vkey,
		now:          now,
		payments:     make(map[string]*payment),
	}
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// CreatePaymentRequest stores a new pending payment.
func (g *Gateway) CreatePaymentRequest(
	ctx context.Context,
	params model.PaymentRequestParams,
) (*model.PaymentRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := g.now()
	id := "dev_" + uuid.NewString()

	g.mu.Lock()
	g.payments[id] = &payment{createdAt: now}
	g.mu.Unlock()

	return &model.PaymentRequest{
		BlockchainIdentifier:      id,
		SubmitResultTime:          millis(now.Add(submitWindow)),
		UnlockTime:                millis(now.Add(unlockWindow)),
		ExternalDisputeUnlockTime: millis(now.Add(disputeWindow)),
		PayByTime:                 millis(now.Add(payByWindow)),
		AgentIdentifier:           params.AgentIdentifier,
		SellerVkey:                g.sellerVkey,
		IdentifierFromPurchaser:   params.IdentifierFromPurchaser,
		Amounts:                   append([]model.Amount(nil), params.Amounts...),
		InputHash:                 params.InputHash,
	}, nil
}

// CheckStatus reports pending until ConfirmAfter has elapsed, then confirmed. Completed
// payments report completed.
func (g *Gateway) CheckStatus(ctx context.Context, paymentID string) (model.PaymentStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	switch {
	case !ok:
		return "", fmt.Errorf("unknown payment %s", paymentID)
	case p.completed:
		return model.PaymentStatusCompleted, nil
	case g.now().Sub(p.createdAt) >= g.confirmAfter:
		return model.PaymentStatusConfirmed, nil
	default:
		return model.PaymentStatusPending, nil
	}
}

// CompletePayment records the result hash.
func (g *Gateway) CompletePayment(ctx context.Context, paymentID, resultHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return fmt.Errorf("unknown payment %s", paymentID)
	}
	p.completed = true
	p.resultHash = resultHash
	return nil
}

// ResultHash returns the submitted hash for a completed payment. It lets dev-mode
// callers and tests inspect what CompletePayment delivered.
func (g *Gateway) ResultHash(paymentID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok || !p.completed {
		return "", false
	}
	return p.resultHash, true
}
