// Package pipeline provides core.PipelineRunner implementations.
package pipeline

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
	"strings"
	"unicode/utf8"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/masumi-agents/idea-evaluator/internal/domain/model"
)

// DefaultResultPath selects the evaluation text from the pipeline response.
const DefaultResultPath = "result"

const (
	maxResponseBytes = 4 << 20
	snippetLimit     = 512
)

// OAuthConfig enables the client credentials grant for pipeline calls.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// HTTPRunnerConfig configures HTTPRunner.
type HTTPRunnerConfig struct {
	URL string
	// Token is sent as a static bearer token. Ignored when OAuth is set.
	Token string
	OAuth *OAuthConfig
	// ResultPath is a JMESPath expression evaluated against the JSON response.
	ResultPath string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPRunner runs the evaluation crew hosted behind an HTTP endpoint. The request body
// is {"inputs": {"startup_idea": ...}} and the evaluation is read from the response
// with a single JMESPath expression.
type HTTPRunner struct {
	url    string
	client *http.Client
	path   string
	expr   jmespath.JMESPath
	logger *slog.Logger
}

// NewHTTPRunner validates cfg and builds the authenticated client.
func NewHTTPRunner(cfg HTTPRunnerConfig) (*HTTPRunner, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid pipeline URL %q", cfg.URL)
	}

	path := strings.TrimSpace(cfg.ResultPath)
	if path == "" {
		path = DefaultResultPath
	}
	expr, err := jmespath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid result path %q: %w", path, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPRunner{
		url:    u.String(),
		client: authClient(cfg),
		path:   path,
		expr:   expr,
		logger: logger.With("component", "pipeline_http_runner"),
	}, nil
}

func authClient(cfg HTTPRunnerConfig) *http.Client {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	// oauth2 picks the base client up from the context for token and API calls.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	switch {
	case cfg.OAuth != nil && cfg.OAuth.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		return cc.Client(ctx)
	case cfg.Token != "":
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	default:
		return base
	}
}

type runRequest struct {
	Inputs map[string]string `json:"inputs"`
}

// Run posts the idea and returns the evaluation text.
func (r *HTTPRunner) Run(ctx context.Context, idea string) (string, error) {
	payload, err := json.Marshal(runRequest{Inputs: map[string]string{model.StartupIdeaKey: idea}})
	if err != nil {
		return "", fmt.Errorf("encode pipeline request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call pipeline: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read pipeline response: %w", err)
	}
	r.logger.DebugContext(ctx, "pipeline responded", "status", resp.StatusCode, "bytes", len(body))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("pipeline returned %d: %s", resp.StatusCode, snippet(body))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode pipeline response: %w", err)
	}
	return r.extract(doc)
}

func (r *HTTPRunner) extract(doc any) (string, error) {
	v, err := r.expr.Search(doc)
	if err != nil {
		return "", fmt.Errorf("evaluate result path %q: %w", r.path, err)
	}
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("result path %q matched nothing", r.path)
	case string:
		return val, nil
	default:
		// Structured results are kept as JSON text.
		b, err := json.Marshal(val)
		if err != nil {
			return "", errors.New("result is not serializable")
		}
		return string(b), nil
	}
}

// snippet trims an error body to at most snippetLimit bytes without splitting a rune.
func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
