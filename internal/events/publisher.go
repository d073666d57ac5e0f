package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/mqtt"
)

// ChannelCommandFinished names events about commands reaching a terminal status.
const ChannelCommandFinished = "command.finished"

// CommandEvent is the payload published for a finished command.
type CommandEvent struct {
	EventID   string          `json:"event_id"`
	Channel   string          `json:"channel"`
	Timestamp time.Time       `json:"timestamp"`
	Command   command.Command `json:"command"`
}

// NewCommandEvent wraps cmd in a command.finished event.
func NewCommandEvent(cmd command.Command, now time.Time) CommandEvent {
	return CommandEvent{
		EventID:   uuid.NewString(),
		Channel:   ChannelCommandFinished,
		Timestamp: now.UTC(),
		Command:   cmd,
	}
}

// EventPublisher publishes a payload on an MQTT topic.
type EventPublisher interface {
	PublishEvent(topic string, payload []byte) error
}

// CommandPublisher publishes finished commands to
// devicecontrol/command/{device_id}/{command_id}. It implements
// command.Observer; publish failures are logged.
type CommandPublisher struct {
	pub    EventPublisher
	logger Logger
	now    func() time.Time
}

// NewCommandPublisher creates a CommandPublisher.
func NewCommandPublisher(pub EventPublisher) *CommandPublisher {
	return &CommandPublisher{pub: pub, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger for the publisher.
func (p *CommandPublisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// CommandFinished publishes cmd.
func (p *CommandPublisher) CommandFinished(_ context.Context, cmd command.Command) {
	payload, err := json.Marshal(NewCommandEvent(cmd, p.now()))
	if err != nil {
		p.logger.Error("encoding command event failed", "command_id", cmd.ID, "error", err)
		return
	}

	topic := mqtt.Topics{}.CommandEvent(cmd.DeviceID, cmd.ID)
	if err := p.pub.PublishEvent(topic, payload); err != nil {
		p.logger.Warn("publishing command event failed",
			"topic", topic,
			"command_id", cmd.ID,
			"error", err,
		)
	}
}

var _ command.Observer = (*CommandPublisher)(nil)
