package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-device-control/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func finished(id, device string, status command.Status, completed time.Time) command.Command {
	cmd := command.New(device, "set_temperature", map[string]any{"temperature": 22.0}, command.PriorityHigh)
	cmd.ID = id
	cmd.Status = status
	cmd.CreatedAt = completed.Add(-2 * time.Second)
	cmd.QueuedAt = cmd.CreatedAt
	started := completed.Add(-time.Second)
	cmd.StartedAt = &started
	cmd.CompletedAt = &completed
	return cmd
}

func TestRecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := finished("c1", "D", command.StatusCompleted, base)
	ok.Result = map[string]any{"temperature": 22.0}
	ok.RequestedBy = "alice"
	failed := finished("c2", "D", command.StatusFailed, base.Add(time.Minute))
	failed.ErrorMessage = "device offline"
	failed.RetryCount = 3
	other := finished("c3", "E", command.StatusCompleted, base)

	for _, cmd := range []command.Command{ok, failed, other} {
		if err := repo.Record(ctx, cmd); err != nil {
			t.Fatalf("Record(%s) error = %v", cmd.ID, err)
		}
	}

	entries, err := repo.ListByDevice(ctx, "D", 0)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].ID != "c2" || entries[1].ID != "c1" {
		t.Errorf("order = [%s %s], want [c2 c1]", entries[0].ID, entries[1].ID)
	}

	got := entries[0]
	if got.Status != command.StatusFailed || got.ErrorMessage != "device offline" || got.RetryCount != 3 {
		t.Errorf("failed entry = %+v", got.Command)
	}
	if got.Result != nil {
		t.Errorf("Result = %v, want nil", got.Result)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CompletedAt = %v", got.CompletedAt)
	}

	first := entries[1]
	if first.Result["temperature"] != 22.0 || first.Parameters["temperature"] != 22.0 {
		t.Errorf("result/params = %v / %v", first.Result, first.Parameters)
	}
	if first.RequestedBy != "alice" || first.Priority != command.PriorityHigh {
		t.Errorf("entry = %+v", first.Command)
	}
	if first.HistoryID == 0 || first.RecordedAt.IsZero() {
		t.Errorf("HistoryID = %d RecordedAt = %v", first.HistoryID, first.RecordedAt)
	}
}

func TestRecord_ReplacesSameCommand(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cmd := finished("c1", "D", command.StatusFailed, base)
	if err := repo.Record(ctx, cmd); err != nil {
		t.Fatal(err)
	}
	cmd.Status = command.StatusCompleted
	if err := repo.Record(ctx, cmd); err != nil {
		t.Fatal(err)
	}

	entries, err := repo.ListByDevice(ctx, "D", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != command.StatusCompleted {
		t.Errorf("entries = %+v, want one completed", entries)
	}
}

func TestRecord_RejectsUnfinished(t *testing.T) {
	repo := newTestRepo(t)
	cmd := command.New("D", "ping", nil, command.PriorityNormal)
	cmd.ID = "c1"
	if err := repo.Record(context.Background(), cmd); !errors.Is(err, ErrNotTerminal) {
		t.Errorf("Record() error = %v, want ErrNotTerminal", err)
	}
}

func TestListByDevice_Limits(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		cmd := finished(string(rune('a'+i)), "D", command.StatusCompleted, base.Add(time.Duration(i)*time.Second))
		if err := repo.Record(ctx, cmd); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := repo.ListByDevice(ctx, "D", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != "e" {
		t.Errorf("entries = %d first = %s, want 2 starting at e", len(entries), entries[0].ID)
	}

	none, err := repo.ListByDevice(ctx, "nobody", 0)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("ListByDevice(nobody) = %v, %v, want empty slice", none, err)
	}

	if _, err := repo.ListByDevice(ctx, "", 0); !errors.Is(err, ErrMissingDeviceID) {
		t.Errorf("error = %v, want ErrMissingDeviceID", err)
	}
}

func TestPrune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return now.Add(-48 * time.Hour) }
	if err := repo.Record(ctx, finished("old", "D", command.StatusCompleted, now)); err != nil {
		t.Fatal(err)
	}
	repo.now = func() time.Time { return now }
	if err := repo.Record(ctx, finished("new", "D", command.StatusCompleted, now)); err != nil {
		t.Fatal(err)
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	entries, _ := repo.ListByDevice(ctx, "D", 0)
	if len(entries) != 1 || entries[0].ID != "new" {
		t.Errorf("entries = %+v, want only new", entries)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}

func TestRecorder_LogsFailures(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec.CommandFinished(ctx, finished("c1", "D", command.StatusCancelled, base))
	unfinished := command.New("D", "ping", nil, command.PriorityNormal)
	rec.CommandFinished(ctx, unfinished)

	entries, err := repo.ListByDevice(ctx, "D", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != command.StatusCancelled {
		t.Errorf("entries = %+v, want the cancelled command only", entries)
	}
}
