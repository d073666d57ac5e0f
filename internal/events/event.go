package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types published by the device registry.
const (
	EventDeviceCreated = "device.created"
	EventDeviceUpdated = "device.updated"
	EventDeviceDeleted = "device.deleted"
)

// DeviceEvent is a device lifecycle notification.
type DeviceEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	DeviceID   string    `json:"device_id"`
	HouseID    string    `json:"house_id,omitempty"`
	LocationID string    `json:"location_id,omitempty"`
	DeviceName string    `json:"device_name,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Decode parses a device event payload.
//
// Returns:
//   - DeviceEvent: The decoded event
//   - error: ErrMalformedEvent if the payload is not JSON or has no device id
func Decode(payload []byte) (DeviceEvent, error) {
	var ev DeviceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return DeviceEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev.DeviceID == "" {
		return DeviceEvent{}, fmt.Errorf("%w: device_id is missing", ErrMalformedEvent)
	}
	return ev, nil
}

// IsDeletion reports whether the event removes its device. Events without
// a type are treated as deletions because the removal queue and topic
// carry nothing else.
func (e DeviceEvent) IsDeletion() bool {
	return e.EventType == "" || e.EventType == EventDeviceDeleted
}
