// Package slack delivers job failure events to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/masumi-agents/idea-evaluator/internal/observability/notify"
)

// Config captures the Slack webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// StatusURL is the public status endpoint; when set, messages link to the job status.
	StatusURL string
}

// Client posts job failure messages to Slack. Completed jobs are ignored.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	statusURL  string
	client     *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "idea-evaluator"
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retryLimit: max(cfg.RetryLimit, 0),
		statusURL:  strings.TrimSpace(cfg.StatusURL),
		client:     hc,
	}, nil
}

// SendJobEvent posts failed job events to Slack with linear backoff between retries.
func (c *Client) SendJobEvent(ctx context.Context, event notify.JobEvent) error {
	if event.Kind != notify.EventJobFailed {
		return nil
	}

	body, err := json.Marshal(c.formatMessage(event))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) formatMessage(event notify.JobEvent) map[string]any {
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Idea evaluation failed*")
	if job := c.jobValue(event.JobID); job != "" {
		text.WriteString(" ")
		text.WriteString(job)
	}
	text.WriteByte('\n')

	severity := event.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	appendField(&text, "Severity", severity)
	appendField(&text, "Payment", event.PaymentID)
	appendField(&text, "Purchaser", escape(event.PurchaserIdentifier))
	appendField(&text, "Error class", event.ErrorClass)
	appendField(&text, "Error", escape(event.Error))
	appendMetadata(&text, event.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(ts.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// jobValue renders the job id, linked to its status when a status URL is configured.
func (c *Client) jobValue(jobID string) string {
	if jobID == "" {
		return ""
	}
	id := escape(jobID)
	u, err := url.Parse(c.statusURL)
	if c.statusURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return "`" + id + "`"
	}
	q := u.Query()
	q.Set("job_id", jobID)
	u.RawQuery = q.Encode()
	return fmt.Sprintf("<%s|%s>", u.String(), id)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func escape(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

func appendField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text.WriteString("• Metadata:\n")
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(escape(metadata[k]))
		text.WriteByte('\n')
	}
}
