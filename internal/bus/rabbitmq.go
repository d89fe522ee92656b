package bus

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "homedash/internal/errors"
)

// RabbitMQConfig describes the AMQP connection and exchange.
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// RabbitMQ publishes events to a fanout exchange so other processes
// (notification gateways, companion displays) can subscribe.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitMQ dials the broker and declares the exchange.
func NewRabbitMQ(cfg RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL cannot be empty")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "homedash.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "dial RabbitMQ")
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open RabbitMQ channel")
	}
	if err := channel.ExchangeDeclare(exchange, "fanout", cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "declare exchange")
	}
	return &RabbitMQ{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish sends the event as a JSON message.
func (r *RabbitMQ) Publish(ctx context.Context, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode event")
	}
	err = r.channel.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Unix(ev.At, 0),
		Body:        body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "publish event")
	}
	return nil
}

// Close releases the channel and connection.
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// ensure interface compliance at compile time
var _ Bus = (*RabbitMQ)(nil)
