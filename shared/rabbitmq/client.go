package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueBinding is a consumer queue bound to the main exchange
type QueueBinding struct {
	Name       string
	RoutingKey string
}

// Config holds RabbitMQ connection and topology configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	Queues             []QueueBinding
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	// RetryExchange and RetryQueue hold delayed messages until their
	// expiration, then dead-letter them back to the main exchange
	RetryExchange      string
	RetryQueue         string
	Prefetch           int
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Client represents a RabbitMQ client
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	publishMu   sync.Mutex
	// read by publisher and consumer goroutines
	isConnected atomic.Bool
}

// NewClient creates a new RabbitMQ client and declares the topology
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:    config,
		logger:    logger,
		closeChan: make(chan *amqp.Error, 1),
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			conn, err := amqp.DialConfig(dsn, amqpConfig)
			if err != nil {
				return err
			}
			c.conn = conn
			return nil
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(c.config.RetryInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Error("Failed to connect to RabbitMQ",
				slog.Any("error", err),
				slog.Int("attempt", int(n)+1),
				slog.Int("max_attempts", attempts),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}
	c.logger.Info("Successfully connected to RabbitMQ")

	// Create channel
	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if c.config.Prefetch > 0 {
		if err := c.channel.Qos(c.config.Prefetch, 0, false); err != nil {
			c.channel.Close()
			c.conn.Close()
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	// Setup exchanges and queues
	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queues: %w", err)
	}

	// Monitor connection
	c.closeChan = make(chan *amqp.Error, 1)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected.Store(true)

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.Int("queues", len(c.config.Queues)),
		slog.String("retry_queue", c.config.RetryQueue),
	)

	return nil
}

// setup declares exchanges, queues, and bindings
func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, q := range c.config.Queues {
		if err := c.declareQueue(q.Name, q.RoutingKey, c.config.ExchangeName, nil); err != nil {
			return err
		}
	}

	if c.config.RetryExchange == "" || c.config.RetryQueue == "" {
		return nil
	}

	// Fanout keeps each message's original routing key, so expired messages
	// land back on the queue they came from
	err = c.channel.ExchangeDeclare(
		c.config.RetryExchange,
		amqp.ExchangeFanout,
		c.config.ExchangeDurable,
		c.config.ExchangeAutoDelete,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry exchange: %w", err)
	}

	return c.declareQueue(c.config.RetryQueue, "", c.config.RetryExchange, amqp.Table{
		"x-dead-letter-exchange": c.config.ExchangeName,
	})
}

func (c *Client) declareQueue(name, routingKey, exchange string, args amqp.Table) error {
	_, err := c.channel.QueueDeclare(
		name,                     // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		args,                     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	err = c.channel.QueueBind(
		name,       // queue name
		routingKey, // routing key
		exchange,   // exchange
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", name, err)
	}
	return nil
}

// Publish publishes a message to the main exchange with retry logic and exponential backoff
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	return c.publish(ctx, c.config.ExchangeName, routingKey, body, contentType, 0)
}

// PublishDelayed parks a message on the retry queue for delay, after which it
// is routed to the main exchange with routingKey
func (c *Client) PublishDelayed(ctx context.Context, routingKey string, body []byte, contentType string, delay time.Duration) error {
	if c.config.RetryExchange == "" {
		return errors.New("no retry exchange configured")
	}
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return c.publish(ctx, c.config.RetryExchange, routingKey, body, contentType, delay)
}

func (c *Client) publish(ctx context.Context, exchange, routingKey string, body []byte, contentType string, delay time.Duration) error {
	if !c.isConnected.Load() {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3 // default
	}
	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond // default
	}

	msg := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent, // persistent
		Timestamp:    time.Now(),
	}
	if delay > 0 {
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	err := retry.Do(
		func() error {
			c.publishMu.Lock()
			defer c.publishMu.Unlock()
			return c.channel.PublishWithContext(
				ctx,
				exchange,   // exchange
				routingKey, // routing key
				false,      // mandatory
				false,      // immediate
				msg,
			)
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries+1)),
		retry.Delay(baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", int(n)+1),
				slog.Int("max_retries", maxRetries),
				slog.String("routing_key", routingKey),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ after all retries",
			slog.Int("attempts", maxRetries+1),
			slog.String("exchange", exchange),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
		slog.Duration("delay", delay),
	)
	return nil
}

// Consume starts consuming messages from queue
func (c *Client) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected.Load() {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	messages, err := c.channel.Consume(
		queue,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages from %s: %w", queue, err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queue),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

// NotifyClose returns a channel that receives the error that closed the channel
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.closeChan
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected.Store(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected.Load() && c.conn != nil && !c.conn.IsClosed()
}
