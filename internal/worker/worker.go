package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the message source the worker consumes triggers from
type Broker interface {
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
}

// Handler processes one decoded trigger
type Handler interface {
	Handle(ctx context.Context, trigger domain.Trigger) error
}

// Config holds worker configuration
type Config struct {
	Logger  *slog.Logger
	Broker  Broker
	Handler Handler
	// Queues maps each handled stage to the queue carrying its triggers
	Queues      map[domain.Stage]string
	Concurrency int
	// WorkerID prefixes consumer tags; a random id is used when empty
	WorkerID string
}

// triggerMessage is a decoded delivery waiting for a pool goroutine
type triggerMessage struct {
	trigger  domain.Trigger
	delivery amqp.Delivery
}

// Worker consumes stage triggers and runs them on a bounded pool
type Worker struct {
	logger      *slog.Logger
	broker      Broker
	handler     Handler
	queues      map[domain.Stage]string
	concurrency int
	workerID    string
	jobsChan    chan *triggerMessage
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Broker == nil || cfg.Handler == nil {
		return nil, errors.New("worker requires a broker and a handler")
	}
	if len(cfg.Queues) == 0 {
		return nil, errors.New("worker requires at least one queue")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		logger:      logger,
		broker:      cfg.Broker,
		handler:     cfg.Handler,
		queues:      cfg.Queues,
		concurrency: concurrency,
		workerID:    workerID,
		jobsChan:    make(chan *triggerMessage),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start subscribes to every stage queue and processes triggers until ctx is
// canceled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("queues", len(w.queues)),
	)

	for _, stage := range domain.Stages {
		queue, ok := w.queues[stage]
		if !ok {
			continue
		}
		deliveries, err := w.setupConsumer(stage, queue)
		if err != nil {
			return err
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, stage, deliveries)
		}()
	}

	w.spawnWorkerPool(ctx)

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
	}
	return nil
}

// Stop gracefully stops the worker and waits for in-flight triggers
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

func (w *Worker) setupConsumer(stage domain.Stage, queue string) (<-chan amqp.Delivery, error) {
	consumerTag := fmt.Sprintf("%s-%s", w.workerID, stage)

	// auto-ack is off: a trigger is acknowledged only after its handler returns
	deliveries, err := w.broker.Consume(queue, consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", queue, err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.String("queue", queue),
	)
	return deliveries, nil
}
