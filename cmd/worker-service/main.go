package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Brutus88Ai/brutus-x-ai/internal/config"
	"github.com/Brutus88Ai/brutus-x-ai/internal/dispatch"
	"github.com/Brutus88Ai/brutus-x-ai/internal/lock"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
	"github.com/Brutus88Ai/brutus-x-ai/internal/provider"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
	"github.com/Brutus88Ai/brutus-x-ai/shared/logger"
	"github.com/Brutus88Ai/brutus-x-ai/shared/postgresql"
	"github.com/Brutus88Ai/brutus-x-ai/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	jobStore := store.NewPostgres(dbClient.GetDB(), appLogger.Logger)
	locks := lock.NewManager(jobStore, appLogger.Logger)

	renderClient := provider.NewRenderClient(&provider.RenderConfig{
		BaseURL:        cfg.Providers.Render.BaseURL,
		APIKey:         cfg.Providers.Render.APIKey,
		Model:          cfg.Providers.Render.Model,
		DefaultRatio:   cfg.Providers.Render.Ratio,
		DefaultSeconds: cfg.Providers.Render.DurationSeconds,
		Timeout:        cfg.Providers.Render.Timeout,
	}, appLogger.Logger)

	executor := pipeline.NewExecutor(&pipeline.Config{
		Store:     jobStore,
		Locks:     locks,
		Drafter:   initDrafter(&cfg.Providers.LLM, appLogger.Logger),
		Optimizer: provider.NewCaptionOptimizer(cfg.Distribution.Hashtags),
		Assets:    provider.NewAssetGenerator(cfg.Providers.Asset.BaseURL),
		Provider:  renderClient,
		LockTTL:   cfg.Worker.LockTTL,
		Logger:    appLogger.Logger,
	})

	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		Store:        jobStore,
		Locks:        locks,
		Executor:     executor,
		LockTTL:      cfg.Worker.LockTTL,
		PollInterval: cfg.Worker.PollInterval,
		ClaimBatch:   cfg.Worker.ClaimBatch,
		Logger:       appLogger.Logger,
	})

	consumer := dispatch.NewConsumer(rabbitClient, dispatcher, appLogger.Logger)

	// The reconciler shares the webhook's completion path so a stalled
	// job picked up here still gets archived and announced.
	completer := pipeline.NewCompleter(
		jobStore,
		initArchiver(&cfg.Artifacts, appLogger.Logger),
		initNotifier(&cfg.Distribution, appLogger.Logger),
		appLogger.Logger,
	)
	reconciler := pipeline.NewReconciler(&pipeline.ReconcilerConfig{
		Store:        jobStore,
		Provider:     renderClient,
		Completer:    completer,
		RecheckAfter: cfg.Worker.RecheckAfter,
		GiveUpAfter:  cfg.Worker.GiveUpAfter,
		Logger:       appLogger.Logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			errChan <- err
		}
	}()
	go dispatcher.RunPollLoop(ctx)
	go runReconcileLoop(ctx, reconciler, cfg.Worker.ReconcileInterval, appLogger.Logger)

	appLogger.Info("Worker service started",
		slog.String("worker_id", dispatcher.WorkerID()),
		slog.Duration("poll_interval", cfg.Worker.PollInterval),
		slog.Duration("lock_ttl", cfg.Worker.LockTTL),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		cancel()
		closeClients(dbClient, rabbitClient)
		return err
	}

	cancel()

	// Give the in-flight pipeline time to reach a resting state; the
	// lock TTL covers anything that does not make it.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	closeClients(dbClient, rabbitClient)

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// runReconcileLoop sweeps for stalled jobs on a fixed interval.
func runReconcileLoop(ctx context.Context, reconciler *pipeline.Reconciler, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reconciler.Sweep(ctx); err != nil {
				logger.Error("Reconcile sweep failed",
					slog.Any("error", err),
				)
			}
		}
	}
}

func closeClients(dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) {
	if rabbitClient != nil {
		rabbitClient.Close()
	}
	if dbClient != nil {
		dbClient.Close()
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initDrafter falls back to the deterministic mock drafter when no
// model API key is configured.
func initDrafter(cfg *config.LLMProviderConfig, logger *slog.Logger) pipeline.Drafter {
	if cfg.APIKey == "" {
		logger.Warn("No LLM API key configured, using mock drafter")
		return provider.MockDrafter{}
	}
	return provider.NewLLMDrafter(&provider.LLMConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}, logger)
}

// initArchiver returns nil when no artifact directory is configured.
func initArchiver(cfg *config.ArtifactsConfig, logger *slog.Logger) pipeline.Archiver {
	if cfg.Dir == "" {
		return nil
	}
	return provider.NewFileArchiver(cfg.Dir, cfg.PublicBaseURL, cfg.Timeout, logger)
}

// initNotifier falls back to the log-only sink when no distribution
// webhook is configured.
func initNotifier(cfg *config.DistributionConfig, logger *slog.Logger) pipeline.Notifier {
	if cfg.WebhookURL == "" {
		return &provider.LogNotifier{Logger: logger}
	}
	return provider.NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, logger)
}
