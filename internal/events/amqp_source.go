package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/config"
)

// AMQP defaults matching the device registry's publisher.
const (
	DefaultAMQPExchange   = "events.device"
	DefaultAMQPQueue      = "device_control_cleanup_queue"
	DefaultAMQPRoutingKey = EventDeviceDeleted
	DefaultAMQPPrefetch   = 10

	amqpConsumerTag   = "device-control-listener"
	amqpRetryInterval = 5 * time.Second
)

// AMQPSource consumes device events from a RabbitMQ queue bound to the
// device events exchange. It reconnects after connection loss until stopped.
type AMQPSource struct {
	cfg     config.AMQPEventConfig
	handler *Handler

	connected atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
}

// NewAMQPSource creates a source. Empty exchange, queue and routing key
// settings and a non-positive prefetch select the defaults.
func NewAMQPSource(cfg config.AMQPEventConfig, handler *Handler) *AMQPSource {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultAMQPExchange
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultAMQPQueue
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = DefaultAMQPRoutingKey
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultAMQPPrefetch
	}
	return &AMQPSource{cfg: cfg, handler: handler}
}

// Start connects, declares the topology and begins consuming in the
// background. The first connection must succeed; later losses are retried.
func (s *AMQPSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyStarted
	}

	conn, deliveries, err := s.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, conn, deliveries)

	s.handler.logger.Info("listening for device events",
		"transport", "amqp",
		"exchange", s.cfg.Exchange,
		"queue", s.cfg.Queue,
		"routing_key", s.cfg.RoutingKey,
	)
	return nil
}

// Stop ends consumption, closes the connection and waits for the message in
// flight to be settled.
func (s *AMQPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return ErrNotStarted
	}
	s.cancel()
	<-s.done
	s.done = nil
	return nil
}

// Connected reports whether the source currently holds a broker connection.
func (s *AMQPSource) Connected() bool {
	return s.connected.Load()
}

// HealthCheck reports an error while the source is disconnected.
func (s *AMQPSource) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Connected() {
		return ErrNotConnected
	}
	return nil
}

// connect dials the broker and sets up exchange, queue, binding and consumer.
func (s *AMQPSource) connect() (*amqp.Connection, <-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening channel: %w", err)
	}

	setup := []struct {
		what string
		fn   func() error
	}{
		{"setting prefetch", func() error { return ch.Qos(s.cfg.Prefetch, 0, false) }},
		{"declaring exchange", func() error {
			return ch.ExchangeDeclare(s.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
		}},
		{"declaring queue", func() error {
			_, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil)
			return err
		}},
		{"binding queue", func() error {
			return ch.QueueBind(s.cfg.Queue, s.cfg.RoutingKey, s.cfg.Exchange, false, nil)
		}},
	}
	for _, step := range setup {
		if err := step.fn(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("%s: %w", step.what, err)
		}
	}

	deliveries, err := ch.Consume(s.cfg.Queue, amqpConsumerTag, false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("registering consumer: %w", err)
	}

	s.connected.Store(true)
	return conn, deliveries, nil
}

// run consumes until ctx ends, reconnecting whenever the delivery channel
// closes underneath it.
func (s *AMQPSource) run(ctx context.Context, conn *amqp.Connection, deliveries <-chan amqp.Delivery) {
	defer close(s.done)

	for {
		s.consume(ctx, deliveries)
		s.connected.Store(false)
		if conn != nil {
			conn.Close()
		}
		if ctx.Err() != nil {
			return
		}

		s.handler.logger.Warn("AMQP connection lost, reconnecting", "retry_in", amqpRetryInterval.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(amqpRetryInterval):
			}
			var err error
			conn, deliveries, err = s.connect()
			if err == nil {
				s.handler.logger.Info("AMQP reconnected")
				break
			}
			s.handler.logger.Warn("AMQP reconnect failed", "error", err)
		}
	}
}

// consume handles deliveries until the channel closes or ctx ends.
func (s *AMQPSource) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			s.settle(ctx, d)
		}
	}
}

// settle hands one delivery to the handler and acks or requeues it.
func (s *AMQPSource) settle(ctx context.Context, d amqp.Delivery) {
	if err := s.handler.Handle(ctx, d.Body); err != nil {
		if nackErr := d.Nack(false, true); nackErr != nil {
			s.handler.logger.Error("AMQP nack failed", "delivery_tag", d.DeliveryTag, "error", nackErr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		s.handler.logger.Error("AMQP ack failed", "delivery_tag", d.DeliveryTag, "error", err)
	}
}
