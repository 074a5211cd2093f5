package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/masumi-agents/idea-evaluator/config"
	"github.com/masumi-agents/idea-evaluator/internal/adapters/amqp"
	"github.com/masumi-agents/idea-evaluator/internal/adapters/devpayment"
	"github.com/masumi-agents/idea-evaluator/internal/adapters/masumi"
	"github.com/masumi-agents/idea-evaluator/internal/adapters/pipeline"
	"github.com/masumi-agents/idea-evaluator/internal/core"
	"github.com/masumi-agents/idea-evaluator/internal/observability/notify/slack"
	"github.com/masumi-agents/idea-evaluator/internal/service/jobnotifier"
)

// NewPaymentGateway builds the gateway selected by PAYMENT_MODE.
//
//nolint:ireturn // the gateway implementation is selected at runtime.
func NewPaymentGateway(cfg config.PaymentConfig, logger *slog.Logger) (core.PaymentGateway, error) {
	switch cfg.Mode {
	case config.PaymentModeDev:
		logger.Warn("using in-process dev payment gateway; payments confirm automatically",
			"confirm_after", cfg.DevConfirmAfter)
		return devpayment.New(devpayment.Options{
			ConfirmAfter: cfg.DevConfirmAfter,
			SellerVkey:   cfg.SellerVkey,
		}), nil
	case config.PaymentModeMasumi:
		client, err := masumi.NewClient(masumi.Config{
			BaseURL:            cfg.ServiceURL,
			APIKey:             cfg.APIKey,
			Network:            cfg.Network,
			SellerVkey:         cfg.SellerVkey,
			PayByWindow:        cfg.PayByWindow,
			SubmitResultWindow: cfg.SubmitWindow,
			Timeout:            cfg.RequestTimeout,
			Logger:             logger.With("component", "masumi_client"),
		})
		if err != nil {
			return nil, fmt.Errorf("masumi client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown payment mode %q", cfg.Mode)
	}
}

// NewPipelineRunner builds the runner selected by PIPELINE_MODE.
//
//nolint:ireturn // the runner implementation is selected at runtime.
func NewPipelineRunner(cfg config.PipelineConfig, logger *slog.Logger) (core.PipelineRunner, error) {
	switch cfg.Mode {
	case config.PipelineModeStatic:
		return pipeline.StaticRunner{Delay: cfg.StaticDelay}, nil
	case config.PipelineModeHTTP:
		runnerCfg := pipeline.HTTPRunnerConfig{
			URL:        cfg.URL,
			Token:      cfg.Token,
			ResultPath: cfg.ResultPath,
			Logger:     logger.With("component", "pipeline_runner"),
		}
		if cfg.OAuthEnabled() {
			runnerCfg.OAuth = &pipeline.OAuthConfig{
				TokenURL:     cfg.OAuthTokenURL,
				ClientID:     cfg.OAuthClientID,
				ClientSecret: cfg.OAuthClientSecret,
				Scopes:       cfg.OAuthScopes,
			}
		}
		runner, err := pipeline.NewHTTPRunner(runnerCfg)
		if err != nil {
			return nil, fmt.Errorf("pipeline runner: %w", err)
		}
		return runner, nil
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", cfg.Mode)
	}
}

// buildJobNotifier registers the configured job event sinks. The returned closer
// releases broker connections and is never nil.
func buildJobNotifier(logger *slog.Logger, cfg config.ObservabilityConfig) (*jobnotifier.Service, io.Closer) {
	sinks := make([]jobnotifier.SinkRegistration, 0, 2)
	closers := closerList{}

	if cfg.Notifications.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Notifications.Slack.WebhookURL,
			Channel:    cfg.Notifications.Slack.Channel,
			Username:   cfg.Notifications.Slack.Username,
			Timeout:    cfg.Notifications.Timeout,
			RetryLimit: cfg.Notifications.RetryLimit,
			StatusURL:  cfg.Notifications.Slack.StatusURL,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, jobnotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.Events.Enabled() {
		publisher, err := amqp.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			logger.Error("failed to initialise amqp job event publisher", "error", err)
		} else {
			sinks = append(sinks, jobnotifier.SinkRegistration{Name: "amqp", Sink: publisher})
			closers = append(closers, publisher)
		}
	}

	return jobnotifier.NewService(jobnotifier.Options{
		Logger: logger.With("component", "job_notifier"),
		Sinks:  sinks,
	}), closers
}

type closerList []io.Closer

func (c closerList) Close() error {
	var errs []error
	for _, closer := range c {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
