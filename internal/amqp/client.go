// Package amqp carries migration requests and progress over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/dvloznov/finance-migrator/internal/logger"
)

// ErrRejected marks a handler error that must not be redelivered.
var ErrRejected = errors.New("message rejected")

// Channel is the subset of *amqp091.Channel the client uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

type Client struct {
	conn         *amqp091.Connection
	channel      Channel
	exchangeName string
	queueName    string
	progressKey  string
}

// NewClient dials url and declares the exchange and request queue.
func NewClient(url, exchangeName, queueName, progressKey string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client, err := NewClientWithChannel(channel, exchangeName, queueName, progressKey)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

// NewClientWithChannel builds a client on an open channel.
func NewClientWithChannel(channel Channel, exchangeName, queueName, progressKey string) (*Client, error) {
	client := &Client{
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		progressKey:  progressKey,
	}
	if err := client.setup(); err != nil {
		channel.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on a direct exchange.
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishMigrationRequest enqueues a migration for callerID.
func (c *Client) PublishMigrationRequest(ctx context.Context, callerID string) error {
	body, err := NewMigrationRequestMessage(callerID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.queueName, body); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("caller_id", callerID).
		Str("exchange", c.exchangeName).
		Str("queue", c.queueName).
		Msg("Published migration request")
	return nil
}

// PublishProgress publishes one progress message on the progress routing key.
func (c *Client) PublishProgress(ctx context.Context, msg *MigrationProgressMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.progressKey, body)
}

func (c *Client) publish(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		key,            // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeMigrationRequests delivers requests to handler until ctx ends.
// Malformed messages and handler errors wrapping ErrRejected are dropped;
// any other handler error requeues the message.
func (c *Client) ConsumeMigrationRequests(ctx context.Context, handler func(context.Context, *MigrationRequestMessage) error) error {
	log := logger.FromContext(ctx)

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log.Info().Str("queue", c.queueName).Msg("Started consuming migration requests")

	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Stopping message consumption")
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := MigrationRequestMessageFromJSON(delivery.Body)
			if err != nil {
				log.Error().Err(err).Msg("Failed to unmarshal message")
				delivery.Nack(false, false)
				continue
			}

			msgLog := log.With().Str("caller_id", msg.CallerID).Logger()
			msgLog.Info().Msg("Processing migration request")

			if err := handler(ctx, msg); err != nil {
				requeue := !errors.Is(err, ErrRejected)
				msgLog.Error().Err(err).Bool("requeue", requeue).Msg("Failed to handle message")
				delivery.Nack(false, requeue)
				continue
			}

			delivery.Ack(false)
			msgLog.Info().Msg("Successfully processed migration request")
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
