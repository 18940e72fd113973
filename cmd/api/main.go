package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"github.com/smefinder/smefinder/internal/agent"
	"github.com/smefinder/smefinder/internal/api"
	"github.com/smefinder/smefinder/internal/completion"
	"github.com/smefinder/smefinder/internal/pipeline"
	"github.com/smefinder/smefinder/internal/queue"
	"github.com/smefinder/smefinder/internal/secrets"
	"github.com/smefinder/smefinder/internal/slack"
	"github.com/smefinder/smefinder/internal/storage"
	"github.com/smefinder/smefinder/internal/ticket"
	"github.com/smefinder/smefinder/pkg/config"
	"github.com/smefinder/smefinder/pkg/logging"
	"github.com/smefinder/smefinder/pkg/metrics"
	"github.com/smefinder/smefinder/pkg/resilience"
	"github.com/smefinder/smefinder/pkg/types"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "smefinder-api",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	redisClient, err := queue.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err.Error())
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("Redis connection established", "addr", cfg.RedisAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Bedrock.Region))
	cancel()
	if err != nil {
		logger.Error("Failed to load AWS configuration", "error", err.Error())
		os.Exit(1)
	}

	m := metrics.NewMetrics(metrics.DefaultConfig())
	retryCfg := resilience.RetryConfig{
		MaxAttempts:       cfg.Resilience.MaxAttempts,
		BaseDelay:         cfg.Resilience.BaseDelay,
		BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
		MaxDelay:          cfg.Resilience.MaxDelay,
	}

	newBreaker := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             name,
			FailureThreshold: cfg.Resilience.FailureThreshold,
			Cooldown:         cfg.Resilience.Cooldown,
			OnStateChange:    m.ObserveBreakerState,
		})
	}
	newExecutor := func(upstream string, opts ...resilience.ClientOption) *resilience.Client {
		rc := retryCfg
		rc.OnRetry = m.ObserveRetry(upstream)
		return resilience.NewClient(upstream, rc, opts...)
	}

	zendeskClient := ticket.NewClient(cfg.Zendesk)
	zendeskExecutor := newExecutor("zendesk", resilience.WithBreaker(newBreaker("zendesk")))
	contextBuilder := ticket.NewContextBuilder(zendeskClient, zendeskExecutor)

	slackToken := cfg.Slack.BotToken
	if slackToken == "" && cfg.Slack.SecretName != "" {
		secretStore := secrets.NewManager(secretsmanager.NewFromConfig(awsCfg))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		slackToken, err = secretStore.GetSecretKey(ctx, cfg.Slack.SecretName, "bot_token")
		cancel()
		if err != nil {
			logger.Warn("Slack token lookup failed, handoffs disabled", "error", err.Error())
		}
	}

	var slackService pipeline.SlackService
	if slackToken != "" {
		slackService = slack.NewService(slackToken)
	}

	invoker := agent.NewBedrockInvoker(bedrockagentruntime.NewFromConfig(awsCfg), cfg.Bedrock,
		agent.WithInvokeObserver(func(outcome string) {
			m.AgentInvocations.WithLabelValues(outcome).Inc()
		}))

	parser := completion.NewParser(completion.WithTierObserver(func(tier string) {
		m.ParserTierUsed.WithLabelValues(tier).Inc()
	}))

	orchestrator := pipeline.NewOrchestrator(pipeline.Collaborators{
		Contexts:       contextBuilder,
		Validator:      ticket.NewValidator(cfg.Zendesk.MarkerTag),
		Agent:          invoker,
		AgentExecutor:  newExecutor("bedrock", resilience.WithBreaker(newBreaker("bedrock"))),
		Parser:         parser,
		Slack:          slackService,
		SlackExecutor:  newExecutor("slack"),
		Tickets:        zendeskClient,
		TicketExecutor: zendeskExecutor,
		TicketURL:      cfg.Zendesk.TicketURL,
	}, pipeline.WithStageObserver(func(stage pipeline.Stage, mode types.WorkflowMode) {
		if stage.Terminal() {
			m.PipelineRunsTotal.WithLabelValues(string(mode), stage.String()).Inc()
		}
	}), pipeline.WithRunObserver(func(outcome *pipeline.Outcome, elapsed time.Duration) {
		m.PipelineDuration.WithLabelValues(string(outcome.Mode)).Observe(elapsed.Seconds())
		if outcome.Result != nil {
			m.RecommendationsPerRun.Observe(float64(len(outcome.Result.Recommendations)))
		}
	}))

	ticketStore := storage.NewTicketStore(s3.NewFromConfig(awsCfg), cfg.Storage.TicketBucket)
	jobQueue := queue.NewQueue(redisClient)

	router := api.NewRouter(api.RouterConfig{
		Environment:    cfg.Server.Environment,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Webhook: api.NewWebhookHandler(cfg.Zendesk.WebhookSecret,
			orchestrator, contextBuilder, ticketStore, jobQueue,
			api.WithIngestObserver(m.TicketsIngested.Inc)),
		Match:   api.NewMatchHandler(orchestrator),
		Health:  api.NewHealthHandler(version, map[string]api.HealthChecker{"redis": redisClient}),
		Metrics: m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("Server exited")
}
