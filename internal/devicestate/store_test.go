package devicestate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
)

func newTestStore(t *testing.T) (*Store, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	return NewStore(kv, time.Hour), kv
}

func statusPtr(s Status) *Status { return &s }

func strPtr(s string) *string { return &s }

func TestStore_PutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	written, err := s.Put(ctx, DeviceState{
		DeviceID:        "dev-1",
		Status:          StatusOnline,
		Attributes:      map[string]any{"power": "on", "brightness": float64(40)},
		FirmwareVersion: "1.2.3",
		HouseID:         "house-1",
		LocationID:      "kitchen",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !written.LastSeen.Equal(fixed) {
		t.Errorf("Put() LastSeen = %v, want %v", written.LastSeen, fixed)
	}

	got, err := s.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}
	if got.Attributes["power"] != "on" || got.Attributes["brightness"] != float64(40) {
		t.Errorf("Attributes = %v", got.Attributes)
	}
	if got.FirmwareVersion != "1.2.3" || got.HouseID != "house-1" || got.LocationID != "kitchen" {
		t.Errorf("metadata not preserved: %+v", got)
	}
	if !got.LastSeen.Equal(fixed) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, fixed)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_PutValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		state   DeviceState
		wantErr error
	}{
		{"missing id", DeviceState{Status: StatusOnline}, ErrMissingDeviceID},
		{"bad status", DeviceState{DeviceID: "d", Status: "sleeping"}, ErrInvalidStatus},
		{"empty status", DeviceState{DeviceID: "d"}, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(ctx, tt.state)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Put() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_PutReplacesRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, DeviceState{DeviceID: "d", Status: StatusError, ErrorMessage: "overheated"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Put(ctx, DeviceState{DeviceID: "d", Status: StatusOnline}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "d")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared by full replace", got.ErrorMessage)
	}
}

func TestStore_MembershipSets(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, st := range []DeviceState{
		{DeviceID: "a", Status: StatusOnline},
		{DeviceID: "b", Status: StatusOffline},
		{DeviceID: "c", Status: StatusOnline},
	} {
		if _, err := s.Put(ctx, st); err != nil {
			t.Fatalf("Put(%s) error = %v", st.DeviceID, err)
		}
	}

	all, _ := s.DeviceIDs(ctx)
	sort.Strings(all)
	if len(all) != 3 {
		t.Errorf("DeviceIDs() = %v, want 3 devices", all)
	}

	online, _ := s.OnlineDeviceIDs(ctx)
	sort.Strings(online)
	if len(online) != 2 || online[0] != "a" || online[1] != "c" {
		t.Errorf("OnlineDeviceIDs() = %v, want [a c]", online)
	}

	// Going offline leaves the online set but stays known.
	if _, err := s.Update(ctx, "a", Update{Status: statusPtr(StatusMaintenance)}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	online, _ = s.OnlineDeviceIDs(ctx)
	if len(online) != 1 || online[0] != "c" {
		t.Errorf("OnlineDeviceIDs() after maintenance = %v, want [c]", online)
	}
	all, _ = s.DeviceIDs(ctx)
	if len(all) != 3 {
		t.Errorf("DeviceIDs() after maintenance = %v, want 3", all)
	}
}

func TestStore_UpdateMergesFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	if _, err := s.Put(ctx, DeviceState{
		DeviceID:   "d",
		Status:     StatusOnline,
		Attributes: map[string]any{"power": "on"},
		HouseID:    "h1",
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock = clock.Add(time.Minute)
	got, err := s.Update(ctx, "d", Update{
		Attributes:      map[string]any{"temperature": float64(22)},
		FirmwareVersion: strPtr("2.0.0"),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if got.Attributes["power"] != "on" || got.Attributes["temperature"] != float64(22) {
		t.Errorf("Attributes = %v, want merged power+temperature", got.Attributes)
	}
	if got.FirmwareVersion != "2.0.0" {
		t.Errorf("FirmwareVersion = %q, want 2.0.0", got.FirmwareVersion)
	}
	if got.HouseID != "h1" || got.Status != StatusOnline {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if !got.LastSeen.Equal(clock) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, clock)
	}
}

func TestStore_UpdateBumpsLastSeenWhenEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })
	if _, err := s.Put(ctx, DeviceState{DeviceID: "d", Status: StatusOffline}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock = clock.Add(5 * time.Minute)
	got, err := s.Update(ctx, "d", Update{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.LastSeen.Equal(clock) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, clock)
	}
}

func TestStore_UpdateErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Update(ctx, "ghost", Update{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	if _, err := s.Put(ctx, DeviceState{DeviceID: "d", Status: StatusOnline}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Update(ctx, "d", Update{Status: statusPtr("bogus")}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Update(bad status) error = %v, want ErrInvalidStatus", err)
	}
}

func TestStore_RecordExpires(t *testing.T) {
	kv := kvstore.NewMemory()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	kv.SetClock(func() time.Time { return now })
	s := NewStore(kv, time.Hour)
	ctx := context.Background()

	if _, err := s.Put(ctx, DeviceState{DeviceID: "d", Status: StatusOnline}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := s.Get(ctx, "d"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after TTL error = %v, want ErrNotFound", err)
	}
}

func TestStore_CorruptAttributes(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	err := kv.Atomic(ctx, func(b kvstore.Batch) {
		b.HSet(StateKey("d"), map[string]string{
			"device_id":  "d",
			"status":     "online",
			"attributes": "{not json",
		})
	})
	if err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	if _, err := s.Get(ctx, "d"); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("Get() error = %v, want ErrCorruptRecord", err)
	}
}

// gatedStore holds every HGetAll until the expected number of readers have
// arrived, forcing concurrent read-modify-write cycles to interleave.
type gatedStore struct {
	kvstore.Store
	arrived sync.WaitGroup
}

func (g *gatedStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := g.Store.HGetAll(ctx, key)
	g.arrived.Done()
	g.arrived.Wait()
	return fields, err
}

// Update is documented as non-linearizable. When two updates read the same
// snapshot before either writes, the later write drops the earlier one's
// attribute.
func TestStore_ConcurrentUpdateLosesFields(t *testing.T) {
	mem := kvstore.NewMemory()
	seed := NewStore(mem, time.Hour)
	ctx := context.Background()
	if _, err := seed.Put(ctx, DeviceState{DeviceID: "d", Status: StatusOnline}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	gated := &gatedStore{Store: mem}
	gated.arrived.Add(2)
	s := NewStore(gated, time.Hour)

	var wg sync.WaitGroup
	for _, attr := range []string{"a", "b"} {
		wg.Add(1)
		go func(attr string) {
			defer wg.Done()
			if _, err := s.Update(ctx, "d", Update{Attributes: map[string]any{attr: float64(1)}}); err != nil {
				t.Errorf("Update(%s) error = %v", attr, err)
			}
		}(attr)
	}
	wg.Wait()

	got, err := seed.Get(ctx, "d")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_, hasA := got.Attributes["a"]
	_, hasB := got.Attributes["b"]
	if hasA == hasB {
		t.Fatalf("expected exactly one of a, b to survive the lost update; attributes = %v", got.Attributes)
	}
}

func TestStore_SequentialUpdatesKeepBothFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, DeviceState{DeviceID: "d", Status: StatusOnline}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	for _, attr := range []string{"a", "b"} {
		if _, err := s.Update(ctx, "d", Update{Attributes: map[string]any{attr: float64(1)}}); err != nil {
			t.Fatalf("Update(%s) error = %v", attr, err)
		}
	}

	got, _ := s.Get(ctx, "d")
	if got.Attributes["a"] != float64(1) || got.Attributes["b"] != float64(1) {
		t.Errorf("Attributes = %v, want both a and b", got.Attributes)
	}
}

func TestUpdate_ApplyDoesNotAliasInput(t *testing.T) {
	base := DeviceState{DeviceID: "d", Status: StatusOnline, Attributes: map[string]any{"x": float64(1)}}
	out := Update{Attributes: map[string]any{"y": float64(2)}}.Apply(base)

	if _, ok := base.Attributes["y"]; ok {
		t.Error("Apply modified the input attribute map")
	}
	if out.Attributes["x"] != float64(1) || out.Attributes["y"] != float64(2) {
		t.Errorf("Apply() attributes = %v", out.Attributes)
	}
}

func TestUpdate_IsEmpty(t *testing.T) {
	if !(Update{}).IsEmpty() {
		t.Error("zero Update should be empty")
	}
	if (Update{ErrorMessage: strPtr("")}).IsEmpty() {
		t.Error("Update clearing error_message should not be empty")
	}
}
