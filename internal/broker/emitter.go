// Package broker publishes stage triggers to RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/stage"
)

const contentTypeJSON = "application/json"

// Publisher is the subset of the RabbitMQ client the emitter needs
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
	PublishDelayed(ctx context.Context, routingKey string, body []byte, contentType string, delay time.Duration) error
}

// Emitter publishes triggers with the stage name as routing key
type Emitter struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewEmitter creates an Emitter
func NewEmitter(publisher Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger}
}

var _ stage.Emitter = (*Emitter)(nil)

// Emit publishes each trigger. It stops at the first failure; triggers
// already published stay published, which redelivery tolerates.
func (e *Emitter) Emit(ctx context.Context, triggers ...domain.Trigger) error {
	for _, t := range triggers {
		body, err := encode(t)
		if err != nil {
			return err
		}
		if err := e.publisher.Publish(ctx, RoutingKey(t.Stage), body, contentTypeJSON); err != nil {
			return fmt.Errorf("publish %s trigger for job %s: %w", t.Stage, t.JobID, err)
		}
	}
	if len(triggers) > 0 {
		e.logger.Debug("Triggers emitted",
			slog.String("job_id", triggers[0].JobID),
			slog.String("stage", string(triggers[0].Stage)),
			slog.Int("count", len(triggers)),
		)
	}
	return nil
}

// EmitDelayed publishes trigger so that it is delivered after delay
func (e *Emitter) EmitDelayed(ctx context.Context, trigger domain.Trigger, delay time.Duration) error {
	body, err := encode(trigger)
	if err != nil {
		return err
	}
	if err := e.publisher.PublishDelayed(ctx, RoutingKey(trigger.Stage), body, contentTypeJSON, delay); err != nil {
		return fmt.Errorf("publish delayed %s trigger for job %s: %w", trigger.Stage, trigger.JobID, err)
	}
	return nil
}

// RoutingKey is the routing key of a stage's triggers
func RoutingKey(s domain.Stage) string {
	return string(s)
}

func encode(t domain.Trigger) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode trigger: %w", err)
	}
	return body, nil
}
