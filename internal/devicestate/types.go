package devicestate

import "time"

// Status is the operational status of a device.
type Status string

// Status constants.
const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusError, StatusMaintenance}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusError, StatusMaintenance:
		return true
	}
	return false
}

// DeviceState is the live status record for one device.
type DeviceState struct {
	DeviceID        string         `json:"device_id"`
	Status          Status         `json:"status"`
	Attributes      map[string]any `json:"attributes"`
	LastSeen        time.Time      `json:"last_seen"`
	LastCommandID   string         `json:"last_command_id,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	FirmwareVersion string         `json:"firmware_version,omitempty"`
	HouseID         string         `json:"house_id,omitempty"`
	LocationID      string         `json:"location_id,omitempty"`
}

// Online reports whether the device accepts command dispatch.
func (s DeviceState) Online() bool {
	return s.Status == StatusOnline
}

// Clone returns a copy whose attribute map can be modified independently.
func (s DeviceState) Clone() DeviceState {
	cpy := s
	cpy.Attributes = deepCopyMap(s.Attributes)
	return cpy
}

// Update lists the fields to change on an existing state record.
// Nil fields are left untouched. Attributes are merged key by key into the
// existing attribute map rather than replacing it.
type Update struct {
	Status          *Status        `json:"status,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	LastCommandID   *string        `json:"last_command_id,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	FirmwareVersion *string        `json:"firmware_version,omitempty"`
}

// IsEmpty reports whether the update carries no field changes.
func (u Update) IsEmpty() bool {
	return u.Status == nil && len(u.Attributes) == 0 && u.LastCommandID == nil &&
		u.ErrorMessage == nil && u.FirmwareVersion == nil
}

// Apply merges u into s and returns the result. s is not modified.
func (u Update) Apply(s DeviceState) DeviceState {
	out := s.Clone()
	if u.Status != nil {
		out.Status = *u.Status
	}
	if len(u.Attributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]any, len(u.Attributes))
		}
		for k, v := range u.Attributes {
			out.Attributes[k] = deepCopyValue(v)
		}
	}
	if u.LastCommandID != nil {
		out.LastCommandID = *u.LastCommandID
	}
	if u.ErrorMessage != nil {
		out.ErrorMessage = *u.ErrorMessage
	}
	if u.FirmwareVersion != nil {
		out.FirmwareVersion = *u.FirmwareVersion
	}
	return out
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
