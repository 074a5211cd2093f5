package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "idea-evaluator"

// ObservabilityConfig groups configuration for metrics and job event fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
	Events        JobEventsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
	c.Events.Sanitize()
}

// ObservabilityMetricsConfig controls the Prometheus endpoint.
type ObservabilityMetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH"    envDefault:"/metrics"`
}

// Sanitize normalises the metrics path.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.Path = strings.TrimSpace(c.Path)
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
}

// ObservabilityNotificationsConfig controls outbound job failure notifications.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                    `env:"NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration           `env:"NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                     `env:"NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig `                                                 envPrefix:"NOTIFICATIONS_SLACK_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		return
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"idea-evaluator"`
	// StatusURL is the public /status URL used to link jobs from messages.
	StatusURL string `env:"STATUS_URL"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.StatusURL = strings.TrimSpace(c.StatusURL)
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// JobEventsConfig publishes terminal job events to an AMQP topic exchange.
type JobEventsConfig struct {
	AMQPURL  string `env:"EVENTS_AMQP_URL"`
	Exchange string `env:"EVENTS_AMQP_EXCHANGE" envDefault:"idea_evaluator.events"`
}

// Sanitize trims values.
func (c *JobEventsConfig) Sanitize() {
	c.AMQPURL = strings.TrimSpace(c.AMQPURL)
	c.Exchange = strings.TrimSpace(c.Exchange)
	if c.Exchange == "" {
		c.Exchange = "idea_evaluator.events"
	}
}

// Enabled reports whether an AMQP broker is configured.
func (c *JobEventsConfig) Enabled() bool {
	return c.AMQPURL != ""
}
