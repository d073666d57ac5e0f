package events

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/mqtt"
)

// MQTTSubscriber is the part of the MQTT client a source needs.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTSource feeds device events from an MQTT topic into a Handler.
// Messages use QoS 1 and are acknowledged by the client only when the
// handler succeeds.
type MQTTSource struct {
	client  MQTTSubscriber
	topic   string
	handler *Handler

	mu      sync.Mutex
	started bool
}

// NewMQTTSource creates a source for topic. An empty topic selects
// mqtt.DefaultDeviceEventsTopic.
func NewMQTTSource(client MQTTSubscriber, topic string, handler *Handler) *MQTTSource {
	if topic == "" {
		topic = mqtt.DefaultDeviceEventsTopic
	}
	return &MQTTSource{client: client, topic: topic, handler: handler}
}

// Start subscribes to the event topic. ctx bounds the cleanups triggered by
// received events.
func (s *MQTTSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	err := s.client.Subscribe(s.topic, 1, func(_ string, payload []byte) error {
		return s.handler.Handle(ctx, payload)
	})
	if err != nil {
		return err
	}
	s.started = true
	s.handler.logger.Info("listening for device events", "transport", "mqtt", "topic", s.topic)
	return nil
}

// Stop unsubscribes from the event topic.
func (s *MQTTSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	return s.client.Unsubscribe(s.topic)
}
