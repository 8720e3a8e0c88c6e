package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"teamchat/internal/models"
)

// routingKeyPrefix scopes conversation events on the topic exchange.
const routingKeyPrefix = "conv."

// RoutingKey maps a conversation key to its topic-exchange routing key.
// Producers and consumers must agree on this mapping.
func RoutingKey(conversationKey string) string {
	return routingKeyPrefix + conversationKey
}

// AMQPStream consumes conversation events from the topic exchange. Each
// subscription gets its own channel and an exclusive auto-delete queue, so
// every subscriber sees every event.
type AMQPStream struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection

	log *logrus.Entry
}

// NewAMQPStream builds a consumer-side stream for the given broker.
func NewAMQPStream(url, exchange string) *AMQPStream {
	return &AMQPStream{
		url:      url,
		exchange: exchange,
		log:      logrus.WithField("component", "realtime.amqp"),
	}
}

// Subscribe binds an exclusive queue to conv.<key> and decodes deliveries
// into events. The returned channel closes when the consumer dies; the
// release func closes the underlying channel.
func (s *AMQPStream) Subscribe(ctx context.Context, key string) (<-chan models.Event, func() error, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		s.invalidate(conn)
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, routingKeyPrefix+key, s.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("start consumer: %w", err)
	}

	events := make(chan models.Event)
	go func() {
		defer close(events)
		for delivery := range deliveries {
			var event models.Event
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				s.log.WithError(err).WithField("conversation", key).Warn("dropping malformed event")
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, ch.Close, nil
}

func (s *AMQPStream) connection() (*amqp.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && !s.conn.IsClosed() {
		return s.conn, nil
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *AMQPStream) invalidate(conn *amqp.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close tears down the shared connection.
func (s *AMQPStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
