package mqtt

import "fmt"

// Topic prefixes used by the device control service.
const (
	// TopicPrefix is the base for every topic this service publishes.
	TopicPrefix = "devicecontrol"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "devicecontrol/system"

	// DefaultDeviceEventsTopic carries device lifecycle events from the
	// device registry when events travel over MQTT.
	DefaultDeviceEventsTopic = "events/device/deleted"
)

// Topics provides builders for the service's MQTT topics.
//
//	topic := mqtt.Topics{}.CommandEvent("dev-1", "cmd-9")
//	// Returns: "devicecontrol/command/dev-1/cmd-9"
type Topics struct{}

// CommandEvent returns the topic a finished command is published on.
//
// Example: devicecontrol/command/3f2a.../9b1c...
func (Topics) CommandEvent(deviceID, commandID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, deviceID, commandID)
}

// DeviceCommandEvents returns a pattern matching finished commands of one device.
//
// Pattern: devicecontrol/command/{device_id}/+
func (Topics) DeviceCommandEvents(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, deviceID)
}

// AllCommandEvents returns a pattern matching every finished command.
//
// Pattern: devicecontrol/command/+/+
func (Topics) AllCommandEvents() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// SystemStatus returns the service status topic, also used for the LWT.
//
// Example: devicecontrol/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
