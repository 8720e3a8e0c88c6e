// Package rabbitmq publishes conversation and operational events to a topic
// exchange. When the broker is unreachable the service degrades to a noop
// publisher instead of refusing to start.
package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher publishes JSON events to the conversation exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
	Close() error
}

// NewPublisher builds an AMQP publisher or a noop publisher when AMQP is
// disabled or unreachable.
func NewPublisher(amqpURL, exchange string) Publisher {
	log := logrus.WithField("component", "rabbitmq")

	if amqpURL == "" {
		log.Warn("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq disabled, using noop")
		return noopPublisher{reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq disabled, using noop")
		_ = conn.Close()
		return noopPublisher{reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		log.WithError(err).Warn("rabbitmq disabled, using noop")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error()}
	}

	log.WithField("exchange", exchange).Info("rabbitmq connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: log}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *logrus.Entry
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
		Body:         body,
	})
	if err != nil {
		p.log.WithError(err).WithField("routing_key", routingKey).Error("rabbitmq publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	logrus.WithField("routing_key", routingKey).Debug("rabbitmq noop publish")
	return nil
}

func (noopPublisher) PublishJSON(_ context.Context, routingKey string, _ interface{}, _ map[string]string) error {
	logrus.WithField("routing_key", routingKey).Debug("rabbitmq noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for startup logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher, *noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason returns why the noop fallback was chosen, if it was.
func PublisherNoopReason(p Publisher) string {
	switch publisher := p.(type) {
	case noopPublisher:
		return publisher.reason
	case *noopPublisher:
		return publisher.reason
	default:
		return ""
	}
}
