package devicestate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
)

// Key layout shared with the cleanup coordinator.
const (
	stateKeyPrefix = "device:state:"

	// AllDevicesKey is the set of every device with a state record.
	AllDevicesKey = "devices:all"

	// OnlineDevicesKey is the set of devices whose status is online.
	OnlineDevicesKey = "devices:online"
)

// DefaultTTL is how long a state record lives without being written.
const DefaultTTL = 24 * time.Hour

// StateKey returns the hash key holding a device's state record.
func StateKey(deviceID string) string {
	return stateKeyPrefix + deviceID
}

// Hash field names of a state record.
const (
	fieldDeviceID        = "device_id"
	fieldStatus          = "status"
	fieldAttributes      = "attributes"
	fieldLastSeen        = "last_seen"
	fieldLastCommandID   = "last_command_id"
	fieldErrorMessage    = "error_message"
	fieldFirmwareVersion = "firmware_version"
	fieldHouseID         = "house_id"
	fieldLocationID      = "location_id"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store reads and writes device state records.
//
// Thread Safety:
//   - Safe for concurrent use. See the package documentation for the
//     guarantees Update does not give.
type Store struct {
	kv     kvstore.Store
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

// NewStore creates a Store over kv. A non-positive ttl selects DefaultTTL.
func NewStore(kv kvstore.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:     kv,
		ttl:    ttl,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the time source used for last_seen.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns the state record for a device.
//
// Returns:
//   - DeviceState: The stored record
//   - error: ErrNotFound if no record exists, or a store failure
func (s *Store) Get(ctx context.Context, deviceID string) (DeviceState, error) {
	fields, err := s.kv.HGetAll(ctx, StateKey(deviceID))
	if err != nil {
		return DeviceState{}, fmt.Errorf("loading state %s: %w", deviceID, err)
	}
	if len(fields) == 0 {
		return DeviceState{}, ErrNotFound
	}
	return decodeState(fields)
}

// Put replaces the state record for a device.
//
// last_seen is set to the current time, the record TTL is refreshed and the
// device's membership in the all and online sets is recomputed from its
// status, all in one atomic batch.
//
// Returns:
//   - DeviceState: The record as written
//   - error: ErrMissingDeviceID, ErrInvalidStatus, or a store failure
func (s *Store) Put(ctx context.Context, state DeviceState) (DeviceState, error) {
	if state.DeviceID == "" {
		return DeviceState{}, ErrMissingDeviceID
	}
	if !state.Status.Valid() {
		return DeviceState{}, fmt.Errorf("%w: %q", ErrInvalidStatus, state.Status)
	}

	state = state.Clone()
	if state.Attributes == nil {
		state.Attributes = map[string]any{}
	}
	state.LastSeen = s.now().UTC()

	fields, err := encodeState(state)
	if err != nil {
		return DeviceState{}, err
	}

	key := StateKey(state.DeviceID)
	err = s.kv.Atomic(ctx, func(b kvstore.Batch) {
		b.Del(key)
		b.HSet(key, fields)
		b.Expire(key, s.ttl)
		b.SAdd(AllDevicesKey, state.DeviceID)
		if state.Online() {
			b.SAdd(OnlineDevicesKey, state.DeviceID)
		} else {
			b.SRem(OnlineDevicesKey, state.DeviceID)
		}
	})
	if err != nil {
		return DeviceState{}, fmt.Errorf("writing state %s: %w", state.DeviceID, err)
	}

	s.logger.Debug("device state written", "device_id", state.DeviceID, "status", string(state.Status))
	return state, nil
}

// Update merges u into the existing record and writes it back.
//
// This is a read-modify-write with no compare-and-swap: a concurrent Update
// or Put between the read and the write is overwritten. last_seen is always
// bumped, even for an empty update.
//
// Returns:
//   - DeviceState: The record as written
//   - error: ErrNotFound if no record exists, ErrInvalidStatus, or a store failure
func (s *Store) Update(ctx context.Context, deviceID string, u Update) (DeviceState, error) {
	if u.Status != nil && !u.Status.Valid() {
		return DeviceState{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}

	current, err := s.Get(ctx, deviceID)
	if err != nil {
		return DeviceState{}, err
	}

	return s.Put(ctx, u.Apply(current))
}

// DeviceIDs returns every device with a state record.
func (s *Store) DeviceIDs(ctx context.Context) ([]string, error) {
	ids, err := s.kv.SMembers(ctx, AllDevicesKey)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return ids, nil
}

// OnlineDeviceIDs returns every device whose last written status was online.
func (s *Store) OnlineDeviceIDs(ctx context.Context) ([]string, error) {
	ids, err := s.kv.SMembers(ctx, OnlineDevicesKey)
	if err != nil {
		return nil, fmt.Errorf("listing online devices: %w", err)
	}
	return ids, nil
}

func encodeState(state DeviceState) (map[string]string, error) {
	attrs, err := json.Marshal(state.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshalling attributes for %s: %w", state.DeviceID, err)
	}
	return map[string]string{
		fieldDeviceID:        state.DeviceID,
		fieldStatus:          string(state.Status),
		fieldAttributes:      string(attrs),
		fieldLastSeen:        state.LastSeen.Format(time.RFC3339Nano),
		fieldLastCommandID:   state.LastCommandID,
		fieldErrorMessage:    state.ErrorMessage,
		fieldFirmwareVersion: state.FirmwareVersion,
		fieldHouseID:         state.HouseID,
		fieldLocationID:      state.LocationID,
	}, nil
}

func decodeState(fields map[string]string) (DeviceState, error) {
	state := DeviceState{
		DeviceID:        fields[fieldDeviceID],
		Status:          Status(fields[fieldStatus]),
		LastCommandID:   fields[fieldLastCommandID],
		ErrorMessage:    fields[fieldErrorMessage],
		FirmwareVersion: fields[fieldFirmwareVersion],
		HouseID:         fields[fieldHouseID],
		LocationID:      fields[fieldLocationID],
		Attributes:      map[string]any{},
	}

	if raw := fields[fieldAttributes]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Attributes); err != nil {
			return DeviceState{}, fmt.Errorf("%w: attributes of %s: %w", ErrCorruptRecord, state.DeviceID, err)
		}
		if state.Attributes == nil {
			state.Attributes = map[string]any{}
		}
	}

	if raw := fields[fieldLastSeen]; raw != "" {
		lastSeen, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return DeviceState{}, fmt.Errorf("%w: last_seen of %s: %w", ErrCorruptRecord, state.DeviceID, err)
		}
		state.LastSeen = lastSeen
	}

	return state, nil
}
