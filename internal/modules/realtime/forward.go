// README: Broker forwarders (RabbitMQ topic exchange, Kafka topic) for emitted events.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

type RabbitForwarder struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitForwarder(url, exchange string) (*RabbitForwarder, error) {
	f := &RabbitForwarder{url: url, exchange: exchange}
	if err := f.connect(); err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return f, nil
}

func (f *RabbitForwarder) connect() error {
	conn, err := amqp.Dial(f.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(f.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	f.conn, f.ch = conn, ch
	return nil
}

// Forward publishes with routing key "<topic>.<event>", reconnecting once if the channel dropped.
func (f *RabbitForwarder) Forward(ctx context.Context, msg RelayMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil || f.conn.IsClosed() || f.ch == nil || f.ch.IsClosed() {
		if err := f.connect(); err != nil {
			return fmt.Errorf("reconnect rabbitmq: %w", err)
		}
	}
	return f.ch.PublishWithContext(ctx, f.exchange, string(msg.Topic)+"."+msg.Event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         msg.Payload,
	})
}

func (f *RabbitForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil && !f.ch.IsClosed() {
		if err := f.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if f.conn != nil && !f.conn.IsClosed() {
		if err := f.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

type KafkaForwarder struct {
	w *kafka.Writer
}

func NewKafkaForwarder(brokers []string, topic string) *KafkaForwarder {
	return &KafkaForwarder{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// Forward keys messages by topic so each topic stays ordered within a partition.
func (f *KafkaForwarder) Forward(ctx context.Context, msg RelayMessage) error {
	return f.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Topic),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(msg.Event)},
		},
	})
}

func (f *KafkaForwarder) Close() error {
	return f.w.Close()
}
