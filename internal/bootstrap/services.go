package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/smeltapp/smeltd/config"
	"github.com/smeltapp/smeltd/internal/adapters/intake"
	"github.com/smeltapp/smeltd/internal/broadcast"
	"github.com/smeltapp/smeltd/internal/core"
	"github.com/smeltapp/smeltd/internal/data"
	"github.com/smeltapp/smeltd/internal/observability/notify"
	"github.com/smeltapp/smeltd/internal/observability/notify/pagerduty"
	"github.com/smeltapp/smeltd/internal/observability/notify/slack"
	"github.com/smeltapp/smeltd/internal/observability/statsd"

	"github.com/smeltapp/smeltd/internal/audio"
	"github.com/smeltapp/smeltd/internal/llm"
	"github.com/smeltapp/smeltd/internal/observability/metrics"
	"github.com/smeltapp/smeltd/internal/pipeline"
)

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs         *data.JobRepo
	Prompts      *core.PromptCacheService
	Results      *data.ResultRepo
	Credentials  *data.CredentialRepo
	Client       *llm.Client
	Audio        *audio.Preparer
	Broadcaster  *broadcast.Broadcaster
	Orchestrator *pipeline.Orchestrator
	Intake       *intake.Runner

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	Pipeline        *metrics.PipelineSink
	FailureNotifier *notify.Notifier
}

// NewServices wires the full pipeline service graph.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, cfg.Observability)

	encryptor := CreateEncryptor(cfg.CredentialsEncryptionKey, logger)

	jobs := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	results := data.NewResultRepo(deps.DB, data.RepoConfig{Logger: logger})
	credentials := data.NewCredentialRepo(deps.DB, encryptor)

	prompts := core.NewPromptCacheService(core.PromptCacheOptions{
		Cache:  data.NewRedisCacheRepo(deps.RedisClient),
		Repo:   data.NewPromptRepo(deps.DB),
		TTL:    cfg.Cache.PromptTTL,
		Logger: logger,
	})

	client := llm.NewClient(llm.Config{
		BaseURL:              cfg.LLM.BaseURL,
		SystemAPIKey:         cfg.LLM.APIKey,
		CompletionModel:      cfg.LLM.CompletionModel,
		TranscriptionModel:   cfg.LLM.TranscriptionModel,
		MaxTokens:            cfg.LLM.MaxTokens,
		MaxRetries:           cfg.LLM.MaxRetries,
		RetryBaseDelay:       cfg.LLM.RetryBaseDelay,
		RetryMaxDelay:        cfg.LLM.RetryMaxDelay,
		CompletionTimeout:    cfg.LLM.CompletionTimeout,
		TranscriptionTimeout: cfg.LLM.TranscriptionTimeout,
		Logger:               logger,
	})

	preparer := audio.NewPreparer(audio.PreparerConfig{
		MaxFileSizeBytes:   cfg.Pipeline.MaxFileSizeBytes,
		MaxDurationSeconds: cfg.Pipeline.MaxDurationSeconds,
		FFmpegPath:         cfg.Pipeline.FFmpegPath,
		FFprobePath:        cfg.Pipeline.FFprobePath,
		Logger:             logger,
	})

	broadcaster := broadcast.New(broadcast.Config{
		Publisher:   broadcast.NewRedisPublisher(deps.RedisClient),
		OpenTimeout: cfg.Pipeline.BroadcastOpenTimeout,
		Logger:      logger,
	})

	orchestrator := pipeline.New(pipeline.Options{
		Jobs:        jobs,
		Prompts:     prompts,
		Results:     results,
		Credentials: credentials,
		Client:      client,
		Audio:       preparer,
		Opener:      &channelOpener{broadcaster: broadcaster},
		Metrics:     observability.Pipeline,
		Notifier:    notifierOrNil(observability.FailureNotifier),
		SettleDelay: cfg.Pipeline.SettleDelay,
		Logger:      logger,
	})

	runner, err := intake.NewRunner(intake.RunnerOptions{
		DB:           deps.DB,
		Jobs:         jobs,
		Dispatcher:   orchestrator,
		Logger:       logger,
		Workers:      cfg.Pipeline.Workers,
		PollInterval: cfg.Pipeline.PollInterval,
		Metrics:      metricsOrNil(observability.MetricsSink),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire intake runner: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Prompts:       prompts,
		Results:       results,
		Credentials:   credentials,
		Client:        client,
		Audio:         preparer,
		Broadcaster:   broadcaster,
		Orchestrator:  orchestrator,
		Intake:        runner,
		Observability: observability,
	}, nil
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "smelt",
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		Pipeline:        metrics.NewPipelineSink(metricsOrNil(metricsSink)),
		FailureNotifier: buildFailureNotifier(logger, cfg.Notify),
	}
}

// buildFailureNotifier registers every sink with a configured credential.
func buildFailureNotifier(logger *slog.Logger, cfg config.NotifyConfig) *notify.Notifier {
	var sinks []notify.SinkRegistration

	if cfg.SlackWebhookURL != "" {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.SlackWebhookURL,
			Channel:    cfg.SlackChannel,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, notify.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDutyRoutingKey != "" {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDutyRoutingKey,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, notify.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return notify.NewNotifier(notify.Options{Logger: logger, Sinks: sinks})
}

// channelOpener adapts the broadcaster's concrete channel to the pipeline's
// port interface.
type channelOpener struct {
	broadcaster *broadcast.Broadcaster
}

//nolint:ireturn // the pipeline port is an interface on purpose.
func (o *channelOpener) Open(ctx context.Context, jobID string) (pipeline.EventChannel, error) {
	ch, err := o.broadcaster.Open(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// metricsOrNil keeps a typed-nil *statsd.Client from sneaking into an
// interface field.
//
//nolint:ireturn // deliberately widens to the sink interface.
func metricsOrNil(client *statsd.Client) statsd.Sink {
	if client == nil {
		return nil
	}
	return client
}

//nolint:ireturn // deliberately widens to the pipeline port.
func notifierOrNil(n *notify.Notifier) pipeline.FailureNotifier {
	if n == nil || !n.Enabled() {
		return nil
	}
	return n
}

// RunWithShutdown runs the intake runner until SIGINT/SIGTERM, then drains.
func RunWithShutdown(ctx context.Context, services ServiceContainer, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Intake.Run(ctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if sink := services.Observability.MetricsSink; sink != nil {
		if closeErr := sink.Close(); closeErr != nil {
			logger.Warn("close statsd client", "error", closeErr)
		}
	}
	logger.InfoContext(ctx, "shutdown complete")
	return nil
}
