package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
)

const (
	commandKeyPrefix        = "device:command:"
	queueKeyPrefix          = "device:queue:"
	deviceCommandsKeyPrefix = "device:commands:"
)

// Store defaults.
const (
	DefaultTTL        = time.Hour
	DefaultPruneLimit = 100
	DefaultListLimit  = 10
)

// CommandKey returns the hash key of a command record.
func CommandKey(commandID string) string {
	return commandKeyPrefix + commandID
}

// QueueKey returns the sorted-set key of a device's priority index.
func QueueKey(deviceID string) string {
	return queueKeyPrefix + deviceID
}

// DeviceCommandsKey returns the set key listing every command of a device.
func DeviceCommandsKey(deviceID string) string {
	return deviceCommandsKeyPrefix + deviceID
}

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

// Options configures a Store.
type Options struct {
	// TTL is the lifetime of command records. Zero selects DefaultTTL.
	TTL time.Duration
	// PruneLimit bounds stale entries pruned per PeekNext. Zero selects
	// DefaultPruneLimit.
	PruneLimit int
}

// Store persists commands and their per-device priority index.
//
// Thread Safety:
//   - Safe for concurrent use. Each method is atomic on its own; sequences
//     of calls are not isolated from other writers.
type Store struct {
	kv         kvstore.Store
	ttl        time.Duration
	pruneLimit int
	logger     Logger

	clockMu    sync.Mutex
	now        func() time.Time
	lastQueued time.Time
}

// NewStore creates a command Store over kv.
func NewStore(kv kvstore.Store, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.PruneLimit <= 0 {
		opts.PruneLimit = DefaultPruneLimit
	}
	return &Store{
		kv:         kv,
		ttl:        opts.TTL,
		pruneLimit: opts.PruneLimit,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the time source for timestamps and queue times.
func (s *Store) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = now
}

func (s *Store) timestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.now().UTC()
}

// nextQueueTime returns a microsecond-precision time strictly after every
// queue time previously returned by this Store.
func (s *Store) nextQueueTime() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.lastQueued) {
		t = s.lastQueued.Add(time.Microsecond)
	}
	s.lastQueued = t
	return t
}

// Create stores a new pending command and adds it to its device's queue.
//
// The id is generated when empty. Status is forced to pending, the queue
// time is assigned and created_at defaults to it. The record, its TTL, the
// queue entry and the device command set are written in one atomic batch.
//
// Returns:
//   - Command: The command as stored
//   - error: ErrInvalidCommand, ErrInvalidPriority, ErrAlreadyExists, or a store failure
func (s *Store) Create(ctx context.Context, cmd Command) (Command, error) {
	if err := validateNew(cmd); err != nil {
		return Command{}, err
	}

	cmd = cmd.clone()
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	} else {
		exists, err := s.kv.Exists(ctx, CommandKey(cmd.ID))
		if err != nil {
			return Command{}, fmt.Errorf("checking command %s: %w", cmd.ID, err)
		}
		if exists {
			return Command{}, fmt.Errorf("%w: %s", ErrAlreadyExists, cmd.ID)
		}
	}
	if cmd.Priority == "" {
		cmd.Priority = PriorityNormal
	}
	if cmd.Parameters == nil {
		cmd.Parameters = map[string]any{}
	}

	cmd.Status = StatusPending
	cmd.QueuedAt = s.nextQueueTime()
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = cmd.QueuedAt
	}
	cmd.StartedAt = nil
	cmd.CompletedAt = nil
	cmd.Result = nil
	cmd.ErrorMessage = ""

	fields, err := encodeCommand(cmd)
	if err != nil {
		return Command{}, err
	}

	err = s.kv.Atomic(ctx, func(b kvstore.Batch) {
		b.HSet(CommandKey(cmd.ID), fields)
		b.Expire(CommandKey(cmd.ID), s.ttl)
		b.ZAdd(QueueKey(cmd.DeviceID), Score(cmd.Priority, cmd.QueuedAt), cmd.ID)
		b.SAdd(DeviceCommandsKey(cmd.DeviceID), cmd.ID)
		b.Expire(DeviceCommandsKey(cmd.DeviceID), s.ttl)
	})
	if err != nil {
		return Command{}, fmt.Errorf("creating command %s: %w", cmd.ID, err)
	}

	s.logger.Debug("command queued",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command_type", cmd.Type,
		"priority", string(cmd.Priority),
	)
	return cmd, nil
}

// Get returns a command record.
//
// Returns:
//   - Command: The stored command
//   - error: ErrNotFound, ErrCorruptRecord, or a store failure
func (s *Store) Get(ctx context.Context, commandID string) (Command, error) {
	fields, err := s.kv.HGetAll(ctx, CommandKey(commandID))
	if err != nil {
		return Command{}, fmt.Errorf("loading command %s: %w", commandID, err)
	}
	if len(fields) == 0 {
		return Command{}, ErrNotFound
	}
	return decodeCommand(fields)
}

// UpdateStatus moves a command to a new status.
//
// Legal transitions are pending->executing, pending->cancelled and
// executing->completed|failed. Leaving pending removes the queue entry in
// the same batch as the status write. result and errMsg are recorded when
// non-empty. started_at is stamped on executing, completed_at on any
// terminal status.
//
// Returns:
//   - Command: The command as written
//   - error: ErrNotFound, ErrInvalidStatus, ErrInvalidTransition (nothing written), or a store failure
func (s *Store) UpdateStatus(ctx context.Context, commandID string, to Status, result map[string]any, errMsg string) (Command, error) {
	if !to.Valid() {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	cmd, err := s.Get(ctx, commandID)
	if err != nil {
		return Command{}, err
	}

	from := cmd.Status
	if !CanTransition(from, to) {
		return Command{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := s.timestamp()
	cmd.Status = to
	if to == StatusExecuting {
		cmd.StartedAt = &now
	}
	if to.Terminal() {
		cmd.CompletedAt = &now
	}
	if result != nil {
		cmd.Result = result
	}
	if errMsg != "" {
		cmd.ErrorMessage = errMsg
	}

	if err := s.write(ctx, cmd, func(b kvstore.Batch) {
		if from == StatusPending {
			b.ZRem(QueueKey(cmd.DeviceID), cmd.ID)
		}
	}); err != nil {
		return Command{}, err
	}

	s.logger.Debug("command status changed",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"from", string(from),
		"to", string(to),
	)
	return cmd, nil
}

// Requeue returns an executing command to pending after a failed attempt.
//
// retry_count is incremented, errMsg is recorded as the last failure and the
// command gets a fresh queue time, so it is dispatched after commands of the
// same priority queued before the retry.
//
// Returns:
//   - Command: The command as written
//   - error: ErrNotFound, ErrInvalidTransition if not executing,
//     ErrRetriesExhausted, or a store failure
func (s *Store) Requeue(ctx context.Context, commandID, errMsg string) (Command, error) {
	cmd, err := s.Get(ctx, commandID)
	if err != nil {
		return Command{}, err
	}
	if cmd.Status != StatusExecuting {
		return Command{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cmd.Status, StatusPending)
	}
	if !cmd.CanRetry() {
		return Command{}, fmt.Errorf("%w: %d of %d", ErrRetriesExhausted, cmd.RetryCount, cmd.MaxRetries)
	}

	cmd.Status = StatusPending
	cmd.RetryCount++
	cmd.ErrorMessage = errMsg
	cmd.StartedAt = nil
	cmd.QueuedAt = s.nextQueueTime()

	if err := s.write(ctx, cmd, func(b kvstore.Batch) {
		b.ZAdd(QueueKey(cmd.DeviceID), Score(cmd.Priority, cmd.QueuedAt), cmd.ID)
	}); err != nil {
		return Command{}, err
	}

	s.logger.Info("command requeued",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"retry_count", cmd.RetryCount,
		"max_retries", cmd.MaxRetries,
	)
	return cmd, nil
}

// write stores the full record plus any extra index changes atomically.
func (s *Store) write(ctx context.Context, cmd Command, extra func(b kvstore.Batch)) error {
	fields, err := encodeCommand(cmd)
	if err != nil {
		return err
	}
	err = s.kv.Atomic(ctx, func(b kvstore.Batch) {
		b.HSet(CommandKey(cmd.ID), fields)
		b.Expire(CommandKey(cmd.ID), s.ttl)
		extra(b)
	})
	if err != nil {
		return fmt.Errorf("writing command %s: %w", cmd.ID, err)
	}
	return nil
}

// PeekNext returns the pending command with the lowest dispatch score.
//
// Entries whose record is missing, undecodable, owned by another device or
// no longer pending are removed from the queue and the lookup moves on. At
// most PruneLimit entries are pruned per call; a stale head found after that
// is left in place and reported as corruption.
//
// Returns:
//   - Command: The next pending command (its status is not changed)
//   - error: ErrQueueEmpty, ErrCorruptionDetected, or a store failure
func (s *Store) PeekNext(ctx context.Context, deviceID string) (Command, error) {
	queue := QueueKey(deviceID)

	for pruned := 0; ; pruned++ {
		ids, err := s.kv.ZRange(ctx, queue, 0, 0)
		if err != nil {
			return Command{}, fmt.Errorf("reading queue of %s: %w", deviceID, err)
		}
		if len(ids) == 0 {
			return Command{}, ErrQueueEmpty
		}

		id := ids[0]
		cmd, err := s.Get(ctx, id)
		reason := staleReason(cmd, deviceID, err)
		if reason == "" {
			if err != nil {
				return Command{}, err
			}
			return cmd, nil
		}
		if pruned == s.pruneLimit {
			break
		}

		s.logger.Warn("pruning stale queue entry",
			"device_id", deviceID,
			"command_id", id,
			"reason", reason,
		)
		if err := s.kv.ZRem(ctx, queue, id); err != nil {
			return Command{}, fmt.Errorf("pruning queue entry %s: %w", id, err)
		}
	}

	s.logger.Error("priority index prune budget exhausted",
		"device_id", deviceID,
		"prune_limit", s.pruneLimit,
	)
	return Command{}, fmt.Errorf("%w: device %s", ErrCorruptionDetected, deviceID)
}

// staleReason explains why a queue entry should be pruned, or returns ""
// when the entry is usable or the lookup failed for an unrelated reason.
func staleReason(cmd Command, deviceID string, err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "record missing"
	case errors.Is(err, ErrCorruptRecord):
		return "record corrupt"
	case err != nil:
		return ""
	case cmd.Status != StatusPending:
		return "status " + string(cmd.Status)
	case cmd.DeviceID != deviceID:
		return "owned by " + cmd.DeviceID
	}
	return ""
}

// List returns up to limit queued commands of a device in dispatch order,
// keeping only those with the given status when status is non-empty.
// Entries whose record is gone are skipped. A non-positive limit selects
// DefaultListLimit.
func (s *Store) List(ctx context.Context, deviceID string, status Status, limit int) ([]Command, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ids, err := s.kv.ZRange(ctx, QueueKey(deviceID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("reading queue of %s: %w", deviceID, err)
	}

	out := make([]Command, 0, min(limit, len(ids)))
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		cmd, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if status != "" && cmd.Status != status {
			continue
		}
		out = append(out, cmd)
	}
	return out, nil
}

// ListAll returns up to limit commands of a device regardless of queue
// membership, newest first, filtered by status when non-empty.
func (s *Store) ListAll(ctx context.Context, deviceID string, status Status, limit int) ([]Command, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ids, err := s.kv.SMembers(ctx, DeviceCommandsKey(deviceID))
	if err != nil {
		return nil, fmt.Errorf("listing commands of %s: %w", deviceID, err)
	}

	all := make([]Command, 0, len(ids))
	for _, id := range ids {
		cmd, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if status != "" && cmd.Status != status {
			continue
		}
		all = append(all, cmd)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// QueuedIDs returns the ids in a device's priority index, stale or not.
func (s *Store) QueuedIDs(ctx context.Context, deviceID string) ([]string, error) {
	ids, err := s.kv.ZRange(ctx, QueueKey(deviceID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("reading queue of %s: %w", deviceID, err)
	}
	return ids, nil
}

// KnownIDs returns every command id recorded for a device.
func (s *Store) KnownIDs(ctx context.Context, deviceID string) ([]string, error) {
	ids, err := s.kv.SMembers(ctx, DeviceCommandsKey(deviceID))
	if err != nil {
		return nil, fmt.Errorf("listing commands of %s: %w", deviceID, err)
	}
	return ids, nil
}

// Exists reports whether a command record is present.
func (s *Store) Exists(ctx context.Context, commandID string) (bool, error) {
	ok, err := s.kv.Exists(ctx, CommandKey(commandID))
	if err != nil {
		return false, fmt.Errorf("checking command %s: %w", commandID, err)
	}
	return ok, nil
}

func validateNew(cmd Command) error {
	if cmd.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidCommand)
	}
	if cmd.Type == "" {
		return fmt.Errorf("%w: command type is required", ErrInvalidCommand)
	}
	if cmd.Priority != "" && !cmd.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, cmd.Priority)
	}
	if cmd.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidCommand)
	}
	if cmd.RetryCount < 0 {
		return fmt.Errorf("%w: retry_count must not be negative", ErrInvalidCommand)
	}
	return nil
}

func (c Command) clone() Command {
	cpy := c
	if c.Parameters != nil {
		cpy.Parameters = make(map[string]any, len(c.Parameters))
		for k, v := range c.Parameters {
			cpy.Parameters[k] = v
		}
	}
	if c.Result != nil {
		cpy.Result = make(map[string]any, len(c.Result))
		for k, v := range c.Result {
			cpy.Result[k] = v
		}
	}
	return cpy
}

// Hash field names of a command record.
const (
	fieldID           = "command_id"
	fieldDeviceID     = "device_id"
	fieldType         = "command_type"
	fieldParameters   = "parameters"
	fieldPriority     = "priority"
	fieldStatus       = "status"
	fieldCreatedAt    = "created_at"
	fieldQueuedAt     = "queued_at"
	fieldStartedAt    = "started_at"
	fieldCompletedAt  = "completed_at"
	fieldRequestedBy  = "requested_by"
	fieldResult       = "result"
	fieldErrorMessage = "error_message"
	fieldRetryCount   = "retry_count"
	fieldMaxRetries   = "max_retries"
)

// encodeCommand writes every field, so an HSet fully overwrites the record.
func encodeCommand(cmd Command) (map[string]string, error) {
	params, err := json.Marshal(cmd.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshalling parameters of %s: %w", cmd.ID, err)
	}
	result := ""
	if cmd.Result != nil {
		raw, err := json.Marshal(cmd.Result)
		if err != nil {
			return nil, fmt.Errorf("marshalling result of %s: %w", cmd.ID, err)
		}
		result = string(raw)
	}

	return map[string]string{
		fieldID:           cmd.ID,
		fieldDeviceID:     cmd.DeviceID,
		fieldType:         cmd.Type,
		fieldParameters:   string(params),
		fieldPriority:     string(cmd.Priority),
		fieldStatus:       string(cmd.Status),
		fieldCreatedAt:    formatTime(&cmd.CreatedAt),
		fieldQueuedAt:     formatTime(&cmd.QueuedAt),
		fieldStartedAt:    formatTime(cmd.StartedAt),
		fieldCompletedAt:  formatTime(cmd.CompletedAt),
		fieldRequestedBy:  cmd.RequestedBy,
		fieldResult:       result,
		fieldErrorMessage: cmd.ErrorMessage,
		fieldRetryCount:   strconv.Itoa(cmd.RetryCount),
		fieldMaxRetries:   strconv.Itoa(cmd.MaxRetries),
	}, nil
}

func decodeCommand(fields map[string]string) (Command, error) {
	cmd := Command{
		ID:           fields[fieldID],
		DeviceID:     fields[fieldDeviceID],
		Type:         fields[fieldType],
		Priority:     Priority(fields[fieldPriority]),
		Status:       Status(fields[fieldStatus]),
		RequestedBy:  fields[fieldRequestedBy],
		ErrorMessage: fields[fieldErrorMessage],
		Parameters:   map[string]any{},
	}

	corrupt := func(field string, err error) (Command, error) {
		return Command{}, fmt.Errorf("%w: %s of %s: %w", ErrCorruptRecord, field, cmd.ID, err)
	}

	if raw := fields[fieldParameters]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &cmd.Parameters); err != nil {
			return corrupt(fieldParameters, err)
		}
	}
	if raw := fields[fieldResult]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &cmd.Result); err != nil {
			return corrupt(fieldResult, err)
		}
	}

	var err error
	if cmd.RetryCount, err = parseInt(fields[fieldRetryCount]); err != nil {
		return corrupt(fieldRetryCount, err)
	}
	if cmd.MaxRetries, err = parseInt(fields[fieldMaxRetries]); err != nil {
		return corrupt(fieldMaxRetries, err)
	}

	times := []struct {
		field string
		dst   **time.Time
	}{
		{fieldStartedAt, &cmd.StartedAt},
		{fieldCompletedAt, &cmd.CompletedAt},
	}
	for _, tf := range times {
		t, err := parseTime(fields[tf.field])
		if err != nil {
			return corrupt(tf.field, err)
		}
		*tf.dst = t
	}

	created, err := parseTime(fields[fieldCreatedAt])
	if err != nil {
		return corrupt(fieldCreatedAt, err)
	}
	if created != nil {
		cmd.CreatedAt = *created
	}
	queued, err := parseTime(fields[fieldQueuedAt])
	if err != nil {
		return corrupt(fieldQueuedAt, err)
	}
	if queued != nil {
		cmd.QueuedAt = *queued
	} else {
		cmd.QueuedAt = cmd.CreatedAt
	}

	return cmd, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
