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

	"github.com/cuongbtq/lecturecast/internal/blobref"
	"github.com/cuongbtq/lecturecast/internal/broker"
	"github.com/cuongbtq/lecturecast/internal/config"
	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/jobstore"
	"github.com/cuongbtq/lecturecast/internal/llm"
	"github.com/cuongbtq/lecturecast/internal/objectstore"
	"github.com/cuongbtq/lecturecast/internal/stage"
	"github.com/cuongbtq/lecturecast/internal/tts"
	"github.com/cuongbtq/lecturecast/internal/usage"
	"github.com/cuongbtq/lecturecast/internal/worker"
	"github.com/cuongbtq/lecturecast/shared/logger"
	"github.com/cuongbtq/lecturecast/shared/postgresql"
	"github.com/cuongbtq/lecturecast/shared/rabbitmq"
	"github.com/joho/godotenv"
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
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	store := jobstore.NewPostgres(dbClient.GetDB(), appLogger.Component("jobstore"))
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(context.Background()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	blobs, err := objectstore.NewFS(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	refs := blobref.New(cfg.Storage.Prefix, cfg.Storage.AudioFormat)

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("Backing services connected")

	definitions, err := initStages(cfg, blobs, refs, appLogger)
	if err != nil {
		return err
	}

	runner, err := stage.NewRunner(&stage.RunnerConfig{
		Store:       store,
		Emitter:     broker.NewEmitter(rabbitClient, appLogger.Component("emitter")),
		Accumulator: usage.NewAccumulator(usage.DefaultRates.With(cfg.Usage.Rates), appLogger.Component("usage")),
		Logger:      appLogger.Component("runner"),
		Definitions: definitions,
	})
	if err != nil {
		return fmt.Errorf("failed to create stage runner: %w", err)
	}

	queues := make(map[domain.Stage]string)
	for _, s := range runner.Stages() {
		queues[s] = cfg.RabbitMQ.QueueName(s)
	}

	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Component("worker"),
		Broker:      rabbitClient,
		Handler:     runner,
		Queues:      queues,
		Concurrency: cfg.Worker.Concurrency,
		WorkerID:    cfg.Worker.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Int("queues", len(queues)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case amqpErr := <-rabbitClient.NotifyClose():
		// unacked deliveries are redelivered once a new process connects
		appLogger.Error("RabbitMQ connection lost", slog.Any("error", amqpErr))
		cancel()
		workerInstance.Stop()
		return fmt.Errorf("rabbitmq connection lost: %v", amqpErr)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initStages builds the analyze, script and synthesize definitions with their collaborators
func initStages(cfg *config.Config, blobs objectstore.Store, refs *blobref.Resolver, appLogger *logger.Logger) ([]stage.Definition, error) {
	llmClient, err := llm.NewClient(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		AnalysisModel:   cfg.LLM.AnalysisModel,
		ScriptModel:     cfg.LLM.ScriptModel,
		Temperature:     cfg.LLM.Temperature,
		MaxRetries:      cfg.LLM.MaxRetries,
		Timeout:         cfg.LLM.Timeout,
		ExactTokenCount: cfg.LLM.ExactTokenCount,
	}, appLogger.Component("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	registry, err := initSynthesizers(&cfg.TTS, appLogger)
	if err != nil {
		return nil, err
	}

	return []stage.Definition{
		{
			Stage:  domain.StageAnalyze,
			Policy: stagePolicy(cfg.Pipeline.Analyze),
			Work:   stage.NewAnalyzeWork(llm.NewAnalyzer(llmClient, cfg.LLM.MaxSections), blobs, refs),
		},
		{
			Stage:  domain.StageScript,
			Policy: stagePolicy(cfg.Pipeline.Script),
			Work:   stage.NewScriptWork(llm.NewScriptWriter(llmClient), blobs, refs),
		},
		{
			Stage:  domain.StageSynthesize,
			Policy: stagePolicy(cfg.Pipeline.Synthesize),
			Work:   stage.NewSynthesizeWork(registry, blobs, refs),
		},
	}, nil
}

// initSynthesizers registers every speech provider that has an API key
func initSynthesizers(cfg *config.TTSConfig, appLogger *logger.Logger) (*tts.Registry, error) {
	registry := tts.NewRegistry()

	if cfg.OpenAI.APIKey != "" {
		synth, err := tts.NewOpenAI(tts.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			MaxRetries: cfg.OpenAI.MaxRetries,
			Timeout:    cfg.OpenAI.Timeout,
		}, appLogger.Component("tts.openai"))
		if err != nil {
			return nil, fmt.Errorf("failed to create openai synthesizer: %w", err)
		}
		registry.Register(domain.VoiceProviderOpenAI, synth)
	}

	if cfg.ElevenLabs.APIKey != "" {
		synth, err := tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabs.APIKey,
			BaseURL:    cfg.ElevenLabs.BaseURL,
			Model:      cfg.ElevenLabs.Model,
			MaxRetries: cfg.ElevenLabs.MaxRetries,
			RetryDelay: cfg.ElevenLabs.RetryDelay,
			Timeout:    cfg.ElevenLabs.Timeout,
		}, appLogger.Component("tts.elevenlabs"))
		if err != nil {
			return nil, fmt.Errorf("failed to create elevenlabs synthesizer: %w", err)
		}
		registry.Register(domain.VoiceProviderElevenLabs, synth)
	}

	return registry, nil
}

func stagePolicy(cfg config.StagePolicyConfig) stage.Policy {
	return stage.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     cfg.Timeout,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
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
		ConnectAttempts: 5,
		ConnectInterval: 2 * time.Second,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client and declares one queue per stage
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	var queues []rabbitmq.QueueBinding
	for _, s := range []domain.Stage{domain.StageAnalyze, domain.StageScript, domain.StageSynthesize} {
		queues = append(queues, rabbitmq.QueueBinding{Name: cfg.QueueName(s), RoutingKey: broker.RoutingKey(s)})
	}

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
		Queues:             queues,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RetryExchange:      cfg.Retry.Exchange,
		RetryQueue:         cfg.Retry.Queue,
		Prefetch:           cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
