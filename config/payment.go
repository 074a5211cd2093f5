package config

import (
	"errors"
	"strings"
	"time"
)

// PaymentMode selects the payment gateway implementation.
type PaymentMode string

const (
	PaymentModeMasumi PaymentMode = "masumi"
	PaymentModeDev    PaymentMode = "dev"
)

// PaymentConfig configures the payment gateway and the job price.
type PaymentConfig struct {
	// Mode defaults to dev when DEV is set and masumi otherwise.
	Mode            PaymentMode   `env:"PAYMENT_MODE"`
	ServiceURL      string        `env:"PAYMENT_SERVICE_URL"`
	APIKey          string        `env:"PAYMENT_API_KEY"`
	Network         string        `env:"NETWORK"                      envDefault:"Preprod"`
	AgentIdentifier string        `env:"AGENT_IDENTIFIER"`
	SellerVkey      string        `env:"SELLER_VKEY"`
	Amount          string        `env:"PAYMENT_AMOUNT"               envDefault:"10000000"`
	Unit            string        `env:"PAYMENT_UNIT"                 envDefault:"lovelace"`
	RequestTimeout  time.Duration `env:"PAYMENT_REQUEST_TIMEOUT"      envDefault:"30s"`
	PayByWindow     time.Duration `env:"PAYMENT_PAY_BY_WINDOW"        envDefault:"12h"`
	SubmitWindow    time.Duration `env:"PAYMENT_SUBMIT_RESULT_WINDOW" envDefault:"24h"`
	DevConfirmAfter time.Duration `env:"PAYMENT_DEV_CONFIRM_AFTER"    envDefault:"5s"`

	Monitor MonitorConfig
}

// MonitorConfig tunes payment status polling.
type MonitorConfig struct {
	Interval time.Duration `env:"PAYMENT_MONITOR_INTERVAL"       envDefault:"10s"`
	// MaxDuration fails jobs whose payment is not confirmed in time. Zero disables the limit.
	MaxDuration        time.Duration `env:"PAYMENT_MONITOR_MAX_DURATION"   envDefault:"0s"`
	ErrorThreshold     int           `env:"PAYMENT_STATUS_ERROR_THRESHOLD" envDefault:"5"`
	StatusCheckTimeout time.Duration `env:"PAYMENT_STATUS_CHECK_TIMEOUT"   envDefault:"10s"`
}

// Sanitize normalises payment values and picks the mode.
func (c *PaymentConfig) Sanitize(isDev bool) {
	c.Mode = PaymentMode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	if c.Mode == "" {
		c.Mode = PaymentModeMasumi
		if isDev {
			c.Mode = PaymentModeDev
		}
	}
	c.ServiceURL = strings.TrimRight(strings.TrimSpace(c.ServiceURL), "/")
	c.AgentIdentifier = strings.TrimSpace(c.AgentIdentifier)
	if c.AgentIdentifier == "" && c.Mode == PaymentModeDev {
		c.AgentIdentifier = "dev-agent"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.DevConfirmAfter <= 0 {
		c.DevConfirmAfter = 5 * time.Second
	}

	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 10 * time.Second
	}
	if c.Monitor.MaxDuration < 0 {
		c.Monitor.MaxDuration = 0
	}
	if c.Monitor.ErrorThreshold <= 0 {
		c.Monitor.ErrorThreshold = 5
	}
	if c.Monitor.StatusCheckTimeout <= 0 {
		c.Monitor.StatusCheckTimeout = 10 * time.Second
	}
}

// Validate reports missing settings for the selected mode.
func (c *PaymentConfig) Validate() error {
	switch c.Mode {
	case PaymentModeDev:
		return nil
	case PaymentModeMasumi:
		var errs []error
		if c.ServiceURL == "" {
			errs = append(errs, errors.New("PAYMENT_SERVICE_URL is required"))
		}
		if c.APIKey == "" {
			errs = append(errs, errors.New("PAYMENT_API_KEY is required"))
		}
		if c.AgentIdentifier == "" {
			errs = append(errs, errors.New("AGENT_IDENTIFIER is required"))
		}
		return errors.Join(errs...)
	default:
		return errors.New("PAYMENT_MODE must be masumi or dev")
	}
}
