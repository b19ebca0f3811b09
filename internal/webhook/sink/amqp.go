package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/pkg/config"
)

// Channel is the subset of *amqp.Channel the sink publishes with.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPSink publishes deliveries to a RabbitMQ exchange. When the sink was
// dialed from config, a channel lost to a broker restart is replaced on the
// next delivery.
type AMQPSink struct {
	exchange   string
	routingKey string
	timeout    time.Duration
	logger     *slog.Logger
	dial       func() (Channel, io.Closer, error)

	mu     sync.Mutex
	conn   io.Closer
	ch     Channel
	closed bool
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(cfg config.AMQPConfig, timeout time.Duration, logger *slog.Logger) (*AMQPSink, error) {
	ch, conn, err := dialChannel(cfg)
	if err != nil {
		return nil, err
	}

	s := NewAMQPSink(ch, cfg.Exchange, cfg.RoutingKey, timeout, logger)
	s.conn = conn
	s.dial = func() (Channel, io.Closer, error) { return dialChannel(cfg) }
	return s, nil
}

func dialChannel(cfg config.AMQPConfig) (Channel, io.Closer, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial: func(network, addr string) (net.Conn, error) {
			return net.DialTimeout(network, addr, 5*time.Second)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	kind := cfg.ExchangeType
	if kind == "" {
		kind = amqp.ExchangeTopic
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, kind, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	return ch, conn, nil
}

// NewAMQPSink creates a sink on an open channel. An empty routing key routes
// by the delivery topic, e.g. "order.updated".
func NewAMQPSink(ch Channel, exchange, routingKey string, timeout time.Duration, logger *slog.Logger) *AMQPSink {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &AMQPSink{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		timeout:    timeout,
		logger:     logger,
	}
}

// Deliver publishes d.Body as a persistent message.
func (s *AMQPSink) Deliver(ctx context.Context, d *domain.WebhookDelivery) (*ports.DeliveryResult, error) {
	key := s.routingKey
	if key == "" {
		key = d.Topic
	}

	headers := make(amqp.Table, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["X-Gateway-Subscriber"] = d.Subscriber

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.ID,
		Timestamp:    d.ReceivedAt,
		Type:         d.Topic,
		AppId:        "frenet-gateway",
		Headers:      headers,
		Body:         d.Body,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch, err := s.channel(nil)
	if err == nil {
		err = ch.PublishWithContext(ctx, s.exchange, key, false, false, msg)
		// The broker may drop the channel before IsClosed notices.
		if errors.Is(err, amqp.ErrClosed) && s.dial != nil {
			if ch, err = s.channel(ch); err == nil {
				err = ch.PublishWithContext(ctx, s.exchange, key, false, false, msg)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("publish to %s: %w", s.exchange, err)
	}

	s.logger.Debug("published webhook delivery",
		slog.String("delivery_id", d.ID),
		slog.String("exchange", s.exchange),
		slog.String("routing_key", key),
	)
	return &ports.DeliveryResult{}, nil
}

// channel returns an open channel, redialing when the current one is closed
// or is stale.
func (s *AMQPSink) channel(stale Channel) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, amqp.ErrClosed
	}
	if s.ch != nil && s.ch != stale && !s.ch.IsClosed() {
		return s.ch, nil
	}
	if s.dial == nil {
		if s.ch == nil {
			return nil, amqp.ErrClosed
		}
		return s.ch, nil
	}

	s.closeLocked()
	ch, conn, err := s.dial()
	if err != nil {
		return nil, err
	}
	s.ch, s.conn = ch, conn
	s.logger.Info("reconnected to rabbitmq", slog.String("exchange", s.exchange))
	return ch, nil
}

func (s *AMQPSink) closeLocked() error {
	var err error
	if s.ch != nil {
		err = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
		s.conn = nil
	}
	return err
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeLocked()
}

var _ ports.Sink = (*AMQPSink)(nil)
