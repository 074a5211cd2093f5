package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - http.go: HTTP server configuration
//   - payment.go: Payment service and monitoring configuration
//   - pipeline.go: Evaluation pipeline configuration
//   - store.go: Job store configuration
//   - observability.go: Metrics, notifications and job events
type AppConfig struct {
	// IsDev switches unset payment and pipeline modes to their in-process development
	// implementations. Set DEV=true or APP_ENV=development.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTP          HTTPConfig
	Payment       PaymentConfig
	Pipeline      PipelineConfig
	Store         StoreConfig
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	c.HTTP.Sanitize()
	c.Payment.Sanitize(c.IsDev)
	c.Pipeline.Sanitize(c.IsDev)
	c.Store.Sanitize()
	c.Observability.Sanitize()
}

// detectDevMode falls back to APP_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}
