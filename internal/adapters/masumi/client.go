// Package masumi implements core.PaymentGateway against the Masumi payment service REST API.
package masumi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultPayByWindow   = 12 * time.Hour
	defaultSubmitWindow  = 24 * time.Hour
	maxErrorBodyBytes    = 4 << 10
	onChainFundsLocked   = "FundsLocked"
	responseStatusOK     = "success"
	headerToken          = "token"
	pathPayment          = "/payment"
	pathResolvePayment   = "/payment/resolve-blockchain-identifier"
	pathSubmitResult     = "/payment/submit-result"
	defaultNetwork       = "Preprod"
	errBodySnippetSuffix = "..."
)

// Config configures the payment service client.
type Config struct {
	// BaseURL is the payment service API root, e.g. http://localhost:3001/api/v1.
	BaseURL    string
	APIKey     string
	Network    string
	SellerVkey string
	// PayByWindow and SubmitResultWindow are offsets from request time.
	PayByWindow        time.Duration
	SubmitResultWindow time.Duration
	Timeout            time.Duration
	HTTPClient         *http.Client
	Logger             *slog.Logger
	Now                func() time.Time
}

// Client talks to the Masumi payment service.
type Client struct {
	baseURL      string
	apiKey       string
	network      string
	sellerVkey   string
	payBy        time.Duration
	submitWindow time.Duration
	http         *http.Client
	logger       *slog.Logger
	now          func() time.Time
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("payment service URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid payment service URL %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("payment API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	network := cfg.Network
	if network == "" {
		network = defaultNetwork
	}

	return &Client{
		baseURL:      base,
		apiKey:       cfg.APIKey,
		network:      network,
		sellerVkey:   cfg.SellerVkey,
		payBy:        positiveOr(cfg.PayByWindow, defaultPayByWindow),
		submitWindow: positiveOr(cfg.SubmitResultWindow, defaultSubmitWindow),
		http:         httpClient,
		logger:       logger.With("component", "masumi_client"),
		now:          now,
	}, nil
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type createPaymentRequest struct {
	AgentIdentifier         string         `json:"agentIdentifier"`
	Network                 string         `json:"network"`
	InputHash               string         `json:"inputHash"`
	IdentifierFromPurchaser string         `json:"identifierFromPurchaser"`
	PayByTime               string         `json:"payByTime"`
	SubmitResultTime        string         `json:"submitResultTime"`
	RequestedFunds          []model.Amount `json:"RequestedFunds,omitempty"`
	Metadata                string         `json:"metadata,omitempty"`
}

type paymentData struct {
	BlockchainIdentifier      string         `json:"blockchainIdentifier"`
	SubmitResultTime          string         `json:"submitResultTime"`
	UnlockTime                string         `json:"unlockTime"`
	ExternalDisputeUnlockTime string         `json:"externalDisputeUnlockTime"`
	PayByTime                 string         `json:"payByTime"`
	InputHash                 string         `json:"inputHash"`
	IdentifierFromPurchaser   string         `json:"identifierFromPurchaser"`
	RequestedFunds            []model.Amount `json:"RequestedFunds"`
	SmartContractWallet       struct {
		WalletVkey string `json:"walletVkey"`
	} `json:"SmartContractWallet"`
	OnChainState *string `json:"onChainState"`
	NextAction   struct {
		RequestedAction string `json:"requestedAction"`
	} `json:"NextAction"`
}

// CreatePaymentRequest registers a payment the purchaser must fund before the job runs.
func (c *Client) CreatePaymentRequest(
	ctx context.Context,
	params model.PaymentRequestParams,
) (*model.PaymentRequest, error) {
	now := c.now()
	body := createPaymentRequest{
		AgentIdentifier:         params.AgentIdentifier,
		Network:                 c.network,
		InputHash:               params.InputHash,
		IdentifierFromPurchaser: params.IdentifierFromPurchaser,
		PayByTime:               now.Add(c.payBy).UTC().Format(time.RFC3339),
		SubmitResultTime:        now.Add(c.submitWindow).UTC().Format(time.RFC3339),
		RequestedFunds:          params.Amounts,
	}

	var out envelope[paymentData]
	if err := c.do(ctx, http.MethodPost, pathPayment, body, &out); err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	if out.Data.BlockchainIdentifier == "" {
		return nil, errors.New("create payment request: response has no blockchainIdentifier")
	}

	d := out.Data
	vkey := d.SmartContractWallet.WalletVkey
	if vkey == "" {
		vkey = c.sellerVkey
	}
	amounts := d.RequestedFunds
	if len(amounts) == 0 {
		amounts = params.Amounts
	}
	purchaser := d.IdentifierFromPurchaser
	if purchaser == "" {
		purchaser = params.IdentifierFromPurchaser
	}
	inputHash := d.InputHash
	if inputHash == "" {
		inputHash = params.InputHash
	}

	c.logger.DebugContext(ctx, "payment request created", "payment_id", d.BlockchainIdentifier)
	return &model.PaymentRequest{
		BlockchainIdentifier:      d.BlockchainIdentifier,
		SubmitResultTime:          d.SubmitResultTime,
		UnlockTime:                d.UnlockTime,
		ExternalDisputeUnlockTime: d.ExternalDisputeUnlockTime,
		PayByTime:                 d.PayByTime,
		AgentIdentifier:           params.AgentIdentifier,
		SellerVkey:                vkey,
		IdentifierFromPurchaser:   purchaser,
		Amounts:                   amounts,
		InputHash:                 inputHash,
	}, nil
}

type resolveRequest struct {
	BlockchainIdentifier string `json:"blockchainIdentifier"`
	Network              string `json:"network"`
}

// CheckStatus reports the on-chain state of a payment. FundsLocked is reported as
// confirmed and a payment with no on-chain state yet as pending; any other state is
// passed through verbatim.
func (c *Client) CheckStatus(ctx context.Context, paymentID string) (model.PaymentStatus, error) {
	var out envelope[paymentData]
	req := resolveRequest{BlockchainIdentifier: paymentID, Network: c.network}
	if err := c.do(ctx, http.MethodPost, pathResolvePayment, req, &out); err != nil {
		return "", fmt.Errorf("check payment %s: %w", paymentID, err)
	}
	return mapOnChainState(out.Data.OnChainState), nil
}

func mapOnChainState(state *string) model.PaymentStatus {
	if state == nil || strings.TrimSpace(*state) == "" {
		return model.PaymentStatusPending
	}
	if *state == onChainFundsLocked {
		return model.PaymentStatusConfirmed
	}
	return model.PaymentStatus(*state)
}

type submitResultRequest struct {
	Network              string `json:"network"`
	BlockchainIdentifier string `json:"blockchainIdentifier"`
	SubmitResultHash     string `json:"submitResultHash"`
}

// CompletePayment submits the result digest, which lets the seller collect the funds.
func (c *Client) CompletePayment(ctx context.Context, paymentID, resultHash string) error {
	req := submitResultRequest{
		Network:              c.network,
		BlockchainIdentifier: paymentID,
		SubmitResultHash:     resultHash,
	}
	var out envelope[json.RawMessage]
	if err := c.do(ctx, http.MethodPost, pathSubmitResult, req, &out); err != nil {
		return fmt.Errorf("complete payment %s: %w", paymentID, err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "payment service returned " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerToken, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		body := strings.TrimSpace(string(snippet))
		if len(snippet) == maxErrorBodyBytes {
			body += errBodySnippetSuffix
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if st, ok := out.(interface{ status() (string, string) }); ok {
		status, msg := st.status()
		if status != "" && status != responseStatusOK {
			if msg == "" {
				msg = status
			}
			return fmt.Errorf("payment service error: %s", msg)
		}
	}
	return nil
}

func (e *envelope[T]) status() (string, string) {
	if e.Error != nil {
		return e.Status, e.Error.Message
	}
	return e.Status, ""
}
