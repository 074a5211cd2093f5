package devpayment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGateway_Lifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := New(Options{ConfirmAfter: time.Minute, Now: clock.Now})
	ctx := context.Background()

	req, err := g.CreatePaymentRequest(ctx, model.PaymentRequestParams{
		AgentIdentifier:         "agent-1",
		IdentifierFromPurchaser: "buyer1",
		InputHash:               "hash",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.BlockchainIdentifier, "dev_"))
	assert.Equal(t, "dev-seller-vkey", req.SellerVkey)
	assert.Equal(t, "buyer1", req.IdentifierFromPurchaser)
	assert.Equal(t, "1735732800000", req.PayByTime)

	status, err := g.CheckStatus(ctx, req.BlockchainIdentifier)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, status)

	clock.Advance(time.Minute)
	status, err = g.CheckStatus(ctx, req.BlockchainIdentifier)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusConfirmed, status)

	_, ok := g.ResultHash(req.BlockchainIdentifier)
	assert.False(t, ok)

	require.NoError(t, g.CompletePayment(ctx, req.BlockchainIdentifier, "digest"))
	status, err = g.CheckStatus(ctx, req.BlockchainIdentifier)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, status)

	hash, ok := g.ResultHash(req.BlockchainIdentifier)
	assert.True(t, ok)
	assert.Equal(t, "digest", hash)
}

func TestGateway_UnknownPayment(t *testing.T) {
	g := New(Options{})
	_, err := g.CheckStatus(context.Background(), "missing")
	require.Error(t, err)
	require.Error(t, g.CompletePayment(context.Background(), "missing", "x"))
}

func TestGateway_CanceledContext(t *testing.T) {
	g := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.CreatePaymentRequest(ctx, model.PaymentRequestParams{})
	require.ErrorIs(t, err, context.Canceled)
}
