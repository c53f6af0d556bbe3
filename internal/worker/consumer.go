package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/lecturecast/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// startMessageDispatcher decodes deliveries of one stage queue and hands them to the pool
func (w *Worker) startMessageDispatcher(ctx context.Context, stage domain.Stage, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
		slog.String("stage", string(stage)),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled", slog.String("stage", string(stage)))
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed", slog.String("stage", string(stage)))
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed", slog.String("stage", string(stage)))
				return
			}

			trigger, err := domain.DecodeTrigger(delivery.Body)
			if err != nil {
				w.logger.Error("Invalid trigger message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages are dropped, never requeued
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}
			if trigger.Stage != stage {
				w.logger.Warn("Trigger arrived on another stage's queue",
					slog.String("queue_stage", string(stage)),
					slog.String("trigger_stage", string(trigger.Stage)),
					slog.String("job_id", trigger.JobID),
				)
			}

			msg := &triggerMessage{trigger: trigger, delivery: delivery}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Trigger dispatched to worker pool",
					slog.String("job_id", trigger.JobID),
					slog.String("stage", string(trigger.Stage)),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching trigger")
				w.nack(delivery, true)
				return
			case <-w.stopChan:
				w.nack(delivery, true)
				return
			}
		}
	}
}

func (w *Worker) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
