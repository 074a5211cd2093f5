package config

import (
	"errors"
	"strings"
	"time"
)

// PipelineMode selects the evaluation pipeline implementation.
type PipelineMode string

const (
	PipelineModeHTTP   PipelineMode = "http"
	PipelineModeStatic PipelineMode = "static"
)

// PipelineConfig configures the evaluation pipeline runner.
type PipelineConfig struct {
	// Mode defaults to static when DEV is set and http otherwise.
	Mode  PipelineMode `env:"PIPELINE_MODE"`
	URL   string       `env:"PIPELINE_URL"`
	Token string       `env:"PIPELINE_TOKEN"`

	OAuthTokenURL     string   `env:"PIPELINE_OAUTH_TOKEN_URL"`
	OAuthClientID     string   `env:"PIPELINE_OAUTH_CLIENT_ID"`
	OAuthClientSecret string   `env:"PIPELINE_OAUTH_CLIENT_SECRET"`
	OAuthScopes       []string `env:"PIPELINE_OAUTH_SCOPES"         envSeparator:","`

	// ResultPath is a JMESPath expression selecting the evaluation from the response.
	ResultPath    string        `env:"PIPELINE_RESULT_PATH"     envDefault:"result"`
	Timeout       time.Duration `env:"PIPELINE_TIMEOUT"         envDefault:"30m"`
	MaxIdeaLength int           `env:"PIPELINE_MAX_IDEA_LENGTH" envDefault:"5000"`

	StaticDelay time.Duration `env:"PIPELINE_STATIC_DELAY" envDefault:"2s"`
}

// Sanitize normalises pipeline values and picks the mode.
func (c *PipelineConfig) Sanitize(isDev bool) {
	c.Mode = PipelineMode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	if c.Mode == "" {
		c.Mode = PipelineModeHTTP
		if isDev {
			c.Mode = PipelineModeStatic
		}
	}
	c.URL = strings.TrimSpace(c.URL)
	c.ResultPath = strings.TrimSpace(c.ResultPath)
	if c.ResultPath == "" {
		c.ResultPath = "result"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.StaticDelay < 0 {
		c.StaticDelay = 0
	}

	scopes := c.OAuthScopes[:0]
	for _, s := range c.OAuthScopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	c.OAuthScopes = scopes
}

// OAuthEnabled reports whether client credentials are configured.
func (c *PipelineConfig) OAuthEnabled() bool {
	return c.OAuthTokenURL != "" && c.OAuthClientID != ""
}

// Validate reports missing settings for the selected mode.
func (c *PipelineConfig) Validate() error {
	switch c.Mode {
	case PipelineModeStatic:
		return nil
	case PipelineModeHTTP:
		if c.URL == "" {
			return errors.New("PIPELINE_URL is required")
		}
		if c.OAuthTokenURL != "" && c.OAuthClientID == "" {
			return errors.New("PIPELINE_OAUTH_CLIENT_ID is required with PIPELINE_OAUTH_TOKEN_URL")
		}
		return nil
	default:
		return errors.New("PIPELINE_MODE must be http or static")
	}
}
