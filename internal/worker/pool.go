package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/lecturecast/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started", slog.String("worker_name", workerName))

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed", slog.String("worker_name", workerName))
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled", slog.String("worker_name", workerName))
			return

		case msg := <-w.jobsChan:
			w.process(ctx, workerName, msg)
		}
	}
}

// process runs the handler and acknowledges the delivery according to its result
func (w *Worker) process(ctx context.Context, workerName string, msg *triggerMessage) {
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.trigger.JobID),
		slog.String("stage", string(msg.trigger.Stage)),
	)

	err := w.handler.Handle(ctx, msg.trigger)
	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			log.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	requeue := shouldRequeue(err)
	log.Error("Trigger processing failed",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)
	w.nack(msg.delivery, requeue)
}

// shouldRequeue decides whether a failed delivery goes back on its queue.
// Stage failures are retried through the job store's attempt counter, so only
// infrastructure trouble reaches this point as retryable.
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrInvalidTrigger) {
		return false
	}
	return domain.IsRetryable(err)
}
