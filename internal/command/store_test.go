package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
)

func newTestStore(t *testing.T) (*Store, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	return NewStore(kv, Options{}), kv
}

func mustCreate(t *testing.T, s *Store, cmd Command) Command {
	t.Helper()
	created, err := s.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return created
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	in := New("dev-1", "set_temperature", map[string]any{"temperature": float64(22)}, PriorityHigh)
	in.RequestedBy = "user-7"

	created := mustCreate(t, s, in)
	if created.ID == "" {
		t.Fatal("Create() did not assign an id")
	}
	if created.Status != StatusPending {
		t.Errorf("Status = %q, want pending", created.Status)
	}
	if created.CreatedAt.IsZero() || created.QueuedAt.IsZero() {
		t.Error("Create() did not stamp created_at/queued_at")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.DeviceID != in.DeviceID || got.Type != in.Type || got.Priority != in.Priority {
		t.Errorf("identity fields differ: got %+v", got)
	}
	if got.Parameters["temperature"] != float64(22) {
		t.Errorf("Parameters = %v", got.Parameters)
	}
	if got.RequestedBy != "user-7" {
		t.Errorf("RequestedBy = %q, want user-7", got.RequestedBy)
	}
	if got.MaxRetries != DefaultMaxRetries || got.RetryCount != 0 {
		t.Errorf("retries = %d/%d, want 0/%d", got.RetryCount, got.MaxRetries, DefaultMaxRetries)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
	if got.StartedAt != nil || got.CompletedAt != nil || got.Result != nil {
		t.Errorf("new command carries execution data: %+v", got)
	}

	queued, _ := s.QueuedIDs(ctx, "dev-1")
	if len(queued) != 1 || queued[0] != created.ID {
		t.Errorf("QueuedIDs() = %v, want [%s]", queued, created.ID)
	}
	known, _ := s.KnownIDs(ctx, "dev-1")
	if len(known) != 1 || known[0] != created.ID {
		t.Errorf("KnownIDs() = %v, want [%s]", known, created.ID)
	}
}

func TestStore_CreateDefaultsAndValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, Command{DeviceID: "d", Type: "ping", Status: StatusCompleted})
	if created.Priority != PriorityNormal {
		t.Errorf("Priority = %q, want normal default", created.Priority)
	}
	if created.Status != StatusPending {
		t.Errorf("Status = %q, want forced pending", created.Status)
	}

	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"missing device", Command{Type: "ping"}, ErrInvalidCommand},
		{"missing type", Command{DeviceID: "d"}, ErrInvalidCommand},
		{"bad priority", Command{DeviceID: "d", Type: "ping", Priority: "urgent"}, ErrInvalidPriority},
		{"negative retries", Command{DeviceID: "d", Type: "ping", MaxRetries: -1}, ErrInvalidCommand},
		{"duplicate id", Command{ID: created.ID, DeviceID: "d", Type: "ping"}, ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_CreateKeepsCallerID(t *testing.T) {
	s, _ := newTestStore(t)
	created := mustCreate(t, s, Command{ID: "fixed-id", DeviceID: "d", Type: "ping"})
	if created.ID != "fixed-id" {
		t.Errorf("ID = %q, want fixed-id", created.ID)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_PeekNextOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Submitted least urgent first; equal priorities must stay FIFO.
	submissions := []struct {
		name     string
		priority Priority
	}{
		{"low-1", PriorityLow},
		{"normal-1", PriorityNormal},
		{"high-1", PriorityHigh},
		{"normal-2", PriorityNormal},
		{"critical-1", PriorityCritical},
		{"high-2", PriorityHigh},
		{"low-2", PriorityLow},
		{"critical-2", PriorityCritical},
	}
	for _, sub := range submissions {
		mustCreate(t, s, Command{ID: sub.name, DeviceID: "d", Type: "ping", Priority: sub.priority})
	}

	want := []string{"critical-1", "critical-2", "high-1", "high-2", "normal-1", "normal-2", "low-1", "low-2"}
	for i, id := range want {
		next, err := s.PeekNext(ctx, "d")
		if err != nil {
			t.Fatalf("PeekNext() #%d error = %v", i, err)
		}
		if next.ID != id {
			t.Fatalf("PeekNext() #%d = %s, want %s", i, next.ID, id)
		}
		if _, err := s.UpdateStatus(ctx, next.ID, StatusExecuting, nil, ""); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
	}

	if _, err := s.PeekNext(ctx, "d"); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("PeekNext() on drained queue error = %v, want ErrQueueEmpty", err)
	}
}

func TestStore_FIFOWithFrozenClock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	frozen := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return frozen })

	first := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})
	second := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})

	if !second.QueuedAt.After(first.QueuedAt) {
		t.Fatalf("queue times not strictly increasing: %v then %v", first.QueuedAt, second.QueuedAt)
	}
	next, err := s.PeekNext(ctx, "d")
	if err != nil {
		t.Fatalf("PeekNext() error = %v", err)
	}
	if next.ID != first.ID {
		t.Errorf("PeekNext() = %s, want first submission %s", next.ID, first.ID)
	}
}

func TestStore_PeekNextDoesNotChangeStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})

	for i := 0; i < 2; i++ {
		next, err := s.PeekNext(ctx, "d")
		if err != nil || next.ID != c.ID || next.Status != StatusPending {
			t.Fatalf("PeekNext() = %+v, %v", next, err)
		}
	}
}

func TestStore_PeekNextPrunesGhosts(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	expired := mustCreate(t, s, Command{ID: "expired", DeviceID: "d", Type: "ping", Priority: PriorityCritical})
	done := mustCreate(t, s, Command{ID: "done", DeviceID: "d", Type: "ping", Priority: PriorityCritical})
	live := mustCreate(t, s, Command{ID: "live", DeviceID: "d", Type: "ping", Priority: PriorityLow})

	// Record gone but entry left behind (TTL expiry).
	if err := kv.Atomic(ctx, func(b kvstore.Batch) { b.Del(CommandKey(expired.ID)) }); err != nil {
		t.Fatalf("deleting record: %v", err)
	}
	// Entry pointing at a command that already left pending.
	if _, err := s.UpdateStatus(ctx, done.ID, StatusExecuting, nil, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := kv.Atomic(ctx, func(b kvstore.Batch) {
		b.ZAdd(QueueKey("d"), Score(PriorityCritical, done.QueuedAt), done.ID)
	}); err != nil {
		t.Fatalf("reinserting stale entry: %v", err)
	}

	next, err := s.PeekNext(ctx, "d")
	if err != nil {
		t.Fatalf("PeekNext() error = %v", err)
	}
	if next.ID != live.ID {
		t.Errorf("PeekNext() = %s, want %s", next.ID, live.ID)
	}

	queued, _ := s.QueuedIDs(ctx, "d")
	if len(queued) != 1 || queued[0] != live.ID {
		t.Errorf("QueuedIDs() after prune = %v, want [%s]", queued, live.ID)
	}
}

func TestStore_PeekNextCorruptionDetected(t *testing.T) {
	kv := kvstore.NewMemory()
	s := NewStore(kv, Options{PruneLimit: 2})
	ctx := context.Background()

	err := kv.Atomic(ctx, func(b kvstore.Batch) {
		for i, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
			b.ZAdd(QueueKey("d"), float64(i), id)
		}
	})
	if err != nil {
		t.Fatalf("seeding ghosts: %v", err)
	}

	// Each call prunes exactly PruneLimit ghosts and leaves the stale head.
	for call, wantLeft := range []int{3, 1} {
		if _, err := s.PeekNext(ctx, "d"); !errors.Is(err, ErrCorruptionDetected) {
			t.Fatalf("PeekNext() call %d error = %v, want ErrCorruptionDetected", call+1, err)
		}
		queued, err := s.QueuedIDs(ctx, "d")
		if err != nil {
			t.Fatalf("QueuedIDs() error = %v", err)
		}
		if len(queued) != wantLeft {
			t.Errorf("after call %d queue = %v, want %d entries", call+1, queued, wantLeft)
		}
	}

	if _, err := s.PeekNext(ctx, "d"); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("final PeekNext() error = %v, want ErrQueueEmpty", err)
	}
}

func TestStore_PeekNextLiveEntryAfterFullBudget(t *testing.T) {
	kv := kvstore.NewMemory()
	s := NewStore(kv, Options{PruneLimit: 2})
	ctx := context.Background()

	live := mustCreate(t, s, Command{DeviceID: "d", Type: "on"})
	err := kv.Atomic(ctx, func(b kvstore.Batch) {
		b.ZAdd(QueueKey("d"), -2, "g1")
		b.ZAdd(QueueKey("d"), -1, "g2")
	})
	if err != nil {
		t.Fatalf("seeding ghosts: %v", err)
	}

	next, err := s.PeekNext(ctx, "d")
	if err != nil {
		t.Fatalf("PeekNext() error = %v", err)
	}
	if next.ID != live.ID {
		t.Errorf("PeekNext() = %s, want %s", next.ID, live.ID)
	}
}

func TestStore_UpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []Status
		to      Status
		wantErr error
	}{
		{"pending to executing", nil, StatusExecuting, nil},
		{"pending to cancelled", nil, StatusCancelled, nil},
		{"pending to completed", nil, StatusCompleted, ErrInvalidTransition},
		{"pending to failed", nil, StatusFailed, ErrInvalidTransition},
		{"pending to pending", nil, StatusPending, ErrInvalidTransition},
		{"executing to completed", []Status{StatusExecuting}, StatusCompleted, nil},
		{"executing to failed", []Status{StatusExecuting}, StatusFailed, nil},
		{"executing to cancelled", []Status{StatusExecuting}, StatusCancelled, ErrInvalidTransition},
		{"executing to pending", []Status{StatusExecuting}, StatusPending, ErrInvalidTransition},
		{"completed to cancelled", []Status{StatusExecuting, StatusCompleted}, StatusCancelled, ErrInvalidTransition},
		{"failed to executing", []Status{StatusExecuting, StatusFailed}, StatusExecuting, ErrInvalidTransition},
		{"cancelled to executing", []Status{StatusCancelled}, StatusExecuting, ErrInvalidTransition},
		{"unknown status", nil, "paused", ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			ctx := context.Background()
			c := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})
			for _, step := range tt.path {
				if _, err := s.UpdateStatus(ctx, c.ID, step, nil, ""); err != nil {
					t.Fatalf("setup UpdateStatus(%s) error = %v", step, err)
				}
			}
			before, _ := s.Get(ctx, c.ID)

			_, err := s.UpdateStatus(ctx, c.ID, tt.to, nil, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("UpdateStatus(%s) error = %v, want %v", tt.to, err, tt.wantErr)
			}

			after, _ := s.Get(ctx, c.ID)
			if tt.wantErr != nil && after.Status != before.Status {
				t.Errorf("rejected transition changed status %s -> %s", before.Status, after.Status)
			}
		})
	}
}

func TestStore_UpdateStatusNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.UpdateStatus(context.Background(), "missing", StatusExecuting, nil, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus() error = %v, want ErrNotFound", err)
	}
}

func TestStore_LeavingPendingRemovesIndexEntry(t *testing.T) {
	for _, to := range []Status{StatusExecuting, StatusCancelled} {
		t.Run(string(to), func(t *testing.T) {
			s, _ := newTestStore(t)
			ctx := context.Background()
			c := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})

			if _, err := s.UpdateStatus(ctx, c.ID, to, nil, ""); err != nil {
				t.Fatalf("UpdateStatus() error = %v", err)
			}
			queued, _ := s.QueuedIDs(ctx, "d")
			if len(queued) != 0 {
				t.Errorf("QueuedIDs() = %v, want empty after leaving pending", queued)
			}
		})
	}
}

func TestStore_UpdateStatusRecordsOutcome(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	c := mustCreate(t, s, Command{DeviceID: "d", Type: "set_brightness"})

	clock = clock.Add(time.Second)
	executing, err := s.UpdateStatus(ctx, c.ID, StatusExecuting, nil, "")
	if err != nil {
		t.Fatalf("UpdateStatus(executing) error = %v", err)
	}
	if executing.StartedAt == nil || !executing.StartedAt.Equal(clock) {
		t.Errorf("StartedAt = %v, want %v", executing.StartedAt, clock)
	}

	clock = clock.Add(time.Second)
	done, err := s.UpdateStatus(ctx, c.ID, StatusCompleted, map[string]any{"brightness": float64(80)}, "")
	if err != nil {
		t.Fatalf("UpdateStatus(completed) error = %v", err)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(clock) {
		t.Errorf("CompletedAt = %v, want %v", done.CompletedAt, clock)
	}

	got, _ := s.Get(ctx, c.ID)
	if got.Result["brightness"] != float64(80) {
		t.Errorf("Result = %v, want brightness 80", got.Result)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("timestamps not persisted")
	}
}

func TestStore_CancelRecordsError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})

	got, err := s.UpdateStatus(ctx, c.ID, StatusCancelled, nil, "Command cancelled by user")
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if got.ErrorMessage != "Command cancelled by user" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("cancelled command should have completed_at")
	}
}

func TestStore_RequeueLosesFIFOPosition(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	retried := mustCreate(t, s, Command{ID: "first", DeviceID: "d", Type: "ping"})
	mustCreate(t, s, Command{ID: "second", DeviceID: "d", Type: "ping"})

	if _, err := s.UpdateStatus(ctx, retried.ID, StatusExecuting, nil, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	requeued, err := s.Requeue(ctx, retried.ID, "device timeout")
	if err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	if requeued.Status != StatusPending || requeued.RetryCount != 1 {
		t.Errorf("Requeue() = status %s retry %d, want pending 1", requeued.Status, requeued.RetryCount)
	}
	if requeued.ErrorMessage != "device timeout" {
		t.Errorf("ErrorMessage = %q, want last failure", requeued.ErrorMessage)
	}
	if !requeued.QueuedAt.After(retried.QueuedAt) {
		t.Error("requeue should assign a fresh queue time")
	}
	if !requeued.CreatedAt.Equal(retried.CreatedAt) {
		t.Error("requeue must not change created_at")
	}

	next, err := s.PeekNext(ctx, "d")
	if err != nil {
		t.Fatalf("PeekNext() error = %v", err)
	}
	if next.ID != "second" {
		t.Errorf("PeekNext() = %s, want second (retried command goes to the back)", next.ID)
	}
}

func TestStore_RequeueBounds(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, Command{DeviceID: "d", Type: "ping", MaxRetries: 1})

	if _, err := s.Requeue(ctx, c.ID, "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Requeue(pending) error = %v, want ErrInvalidTransition", err)
	}

	if _, err := s.UpdateStatus(ctx, c.ID, StatusExecuting, nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Requeue(ctx, c.ID, "x"); err != nil {
		t.Fatalf("first Requeue() error = %v", err)
	}
	if _, err := s.UpdateStatus(ctx, c.ID, StatusExecuting, nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Requeue(ctx, c.ID, "x"); !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("second Requeue() error = %v, want ErrRetriesExhausted", err)
	}

	got, _ := s.Get(ctx, c.ID)
	if got.Status != StatusExecuting || got.RetryCount != 1 {
		t.Errorf("exhausted requeue changed command: %+v", got)
	}
}

func TestStore_List(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for _, p := range []Priority{PriorityLow, PriorityHigh, PriorityNormal, PriorityCritical, PriorityNormal} {
		ids = append(ids, mustCreate(t, s, Command{DeviceID: "d", Type: "ping", Priority: p}).ID)
	}
	mustCreate(t, s, Command{DeviceID: "other", Type: "ping"})

	all, err := s.List(ctx, "d", "", 100)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	wantOrder := []string{ids[3], ids[1], ids[2], ids[4], ids[0]}
	if len(all) != len(wantOrder) {
		t.Fatalf("List() returned %d commands, want %d", len(all), len(wantOrder))
	}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Errorf("List()[%d] = %s, want %s", i, all[i].ID, id)
		}
	}

	limited, _ := s.List(ctx, "d", "", 2)
	if len(limited) != 2 || limited[0].ID != ids[3] {
		t.Errorf("List(limit 2) = %d commands", len(limited))
	}

	pending, _ := s.List(ctx, "d", StatusPending, 100)
	if len(pending) != 5 {
		t.Errorf("List(pending) = %d, want 5", len(pending))
	}
	completed, _ := s.List(ctx, "d", StatusCompleted, 100)
	if len(completed) != 0 {
		t.Errorf("List(completed) = %d, want 0 (index only holds pending)", len(completed))
	}

	if _, err := s.List(ctx, "d", "bogus", 10); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("List(bogus) error = %v, want ErrInvalidStatus", err)
	}

	// Ghost entries are skipped.
	if err := kv.Atomic(ctx, func(b kvstore.Batch) { b.Del(CommandKey(ids[3])) }); err != nil {
		t.Fatal(err)
	}
	afterGhost, _ := s.List(ctx, "d", "", 100)
	if len(afterGhost) != 4 {
		t.Errorf("List() with ghost = %d, want 4", len(afterGhost))
	}

	def, _ := s.List(ctx, "d", "", 0)
	if len(def) != 4 {
		t.Errorf("List(limit 0) = %d, want all 4 under default limit", len(def))
	}
}

func TestStore_ListAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})
	b := mustCreate(t, s, Command{DeviceID: "d", Type: "ping"})
	if _, err := s.UpdateStatus(ctx, a.ID, StatusCancelled, nil, "Command cancelled by user"); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListAll(ctx, "d", "", 10)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != b.ID {
		t.Errorf("ListAll() = %+v, want newest (%s) first", all, b.ID)
	}

	cancelled, _ := s.ListAll(ctx, "d", StatusCancelled, 10)
	if len(cancelled) != 1 || cancelled[0].ID != a.ID {
		t.Errorf("ListAll(cancelled) = %+v", cancelled)
	}
}

func TestScore(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(time.Microsecond)
	muchLater := base.Add(5 * 365 * 24 * time.Hour)

	if !(Score(PriorityCritical, muchLater) < Score(PriorityHigh, base)) {
		t.Error("priority must dominate time")
	}
	if !(Score(PriorityNormal, base) < Score(PriorityNormal, later)) {
		t.Error("one microsecond must separate equal priorities")
	}
	if !(Score(PriorityLow, muchLater) < Score("unknown", base)) {
		t.Error("unknown priorities sort last")
	}
	if Score(PriorityHigh, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)) != Score(PriorityHigh, scoreEpoch) {
		t.Error("times before the epoch clamp to zero")
	}
}

func TestCanTransition(t *testing.T) {
	for _, from := range AllStatuses() {
		if from.Terminal() {
			for _, to := range AllStatuses() {
				if CanTransition(from, to) {
					t.Errorf("terminal %s allows transition to %s", from, to)
				}
			}
		}
	}
}

// The redis backend must give the same ordering and atomic create behaviour.
func TestStore_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := kvstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer kv.Close()

	s := NewStore(kv, Options{TTL: time.Minute})
	ctx := context.Background()

	normal := mustCreate(t, s, Command{DeviceID: "d", Type: "ping", Priority: PriorityNormal})
	critical := mustCreate(t, s, Command{DeviceID: "d", Type: "ping", Priority: PriorityCritical})

	next, err := s.PeekNext(ctx, "d")
	if err != nil {
		t.Fatalf("PeekNext() error = %v", err)
	}
	if next.ID != critical.ID {
		t.Errorf("PeekNext() = %s, want critical %s", next.ID, critical.ID)
	}

	if ttl := mr.TTL(CommandKey(normal.ID)); ttl != time.Minute {
		t.Errorf("command TTL = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(ctx, normal.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
	if _, err := s.PeekNext(ctx, "d"); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("PeekNext() after expiry error = %v, want ErrQueueEmpty", err)
	}
}
