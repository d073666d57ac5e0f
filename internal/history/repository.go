package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
)

const (
	// DefaultLimit is the page size when a query asks for none.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 200

	// timeLayout has fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// Entry is one recorded command.
type Entry struct {
	HistoryID int64 `json:"history_id"`
	command.Command
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository stores finished commands.
type Repository interface {
	Record(ctx context.Context, cmd command.Command) error
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Entry, error)
}

// SQLiteRepository implements Repository on the command_history table.
//
// Thread Safety:
//   - Safe for concurrent use; serialisation is left to database/sql.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record stores cmd. Recording the same command id again replaces the row.
//
// Returns:
//   - error: ErrNotTerminal if cmd is still pending or executing, otherwise
//     the database error
func (r *SQLiteRepository) Record(ctx context.Context, cmd command.Command) error {
	if !cmd.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, cmd.ID, cmd.Status)
	}

	params, err := json.Marshal(nonNil(cmd.Parameters))
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}
	var result sql.NullString
	if cmd.Result != nil {
		b, err := json.Marshal(cmd.Result)
		if err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO command_history (
			command_id, device_id, command_type, priority, status, parameters,
			result, error, retry_count, requested_by,
			created_at, started_at, completed_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (command_id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			retry_count = excluded.retry_count,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			recorded_at = excluded.recorded_at`,
		cmd.ID, cmd.DeviceID, cmd.Type, string(cmd.Priority), string(cmd.Status), string(params),
		result, nullString(cmd.ErrorMessage), cmd.RetryCount, nullString(cmd.RequestedBy),
		formatTime(cmd.CreatedAt), formatTimePtr(cmd.StartedAt), formatTimePtr(cmd.CompletedAt),
		formatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting command history: %w", err)
	}
	return nil
}

// ListByDevice returns the most recently finished commands of a device.
//
// Parameters:
//   - limit: Page size; <= 0 selects DefaultLimit, values above MaxLimit are clamped
//
// Returns:
//   - []Entry: Newest first (may be empty)
//   - error: ErrMissingDeviceID or the database error
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, command_id, device_id, command_type, priority, status, parameters,
		       result, error, retry_count, requested_by,
		       created_at, started_at, completed_at, recorded_at
		FROM command_history
		WHERE device_id = ?
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded more than olderThan ago.
//
// Returns:
//   - int64: Rows deleted
//   - error: If olderThan is not positive or the delete fails
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_history WHERE recorded_at < ?",
		formatTime(r.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("deleting command history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                        Entry
		priority, status, params string
		result, errMsg, by       sql.NullString
		created, recorded        string
		started, completed       sql.NullString
	)
	if err := rows.Scan(&e.HistoryID, &e.ID, &e.DeviceID, &e.Type, &priority, &status, &params,
		&result, &errMsg, &e.RetryCount, &by,
		&created, &started, &completed, &recorded); err != nil {
		return Entry{}, fmt.Errorf("scanning command history: %w", err)
	}

	e.Priority = command.Priority(priority)
	e.Status = command.Status(status)
	e.ErrorMessage = errMsg.String
	e.RequestedBy = by.String

	if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
		return Entry{}, fmt.Errorf("unmarshalling parameters: %w", err)
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &e.Result); err != nil {
			return Entry{}, fmt.Errorf("unmarshalling result: %w", err)
		}
	}

	var err error
	if e.CreatedAt, err = parseTime(created); err != nil {
		return Entry{}, err
	}
	e.QueuedAt = e.CreatedAt
	if e.RecordedAt, err = parseTime(recorded); err != nil {
		return Entry{}, err
	}
	if e.StartedAt, err = parseTimePtr(started); err != nil {
		return Entry{}, err
	}
	if e.CompletedAt, err = parseTimePtr(completed); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, fallbackErr := time.Parse(time.RFC3339, s); fallbackErr == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
