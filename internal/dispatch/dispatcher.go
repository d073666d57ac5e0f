package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
)

// DefaultExecuteTimeout bounds a single executor call.
const DefaultExecuteTimeout = 30 * time.Second

// Logger defines the logging interface used by the Dispatcher.
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

// Deps holds the collaborators of a Dispatcher.
type Deps struct {
	Commands  *command.Store
	States    *devicestate.Store
	Executors *Registry

	// Observer is told about every command the dispatcher finishes. Optional.
	Observer command.Observer
	// Logger is optional.
	Logger Logger
	// ExecuteTimeout bounds one executor call. Zero selects DefaultExecuteTimeout.
	ExecuteTimeout time.Duration
}

// Dispatcher drains device command queues.
//
// Thread Safety:
//   - Safe for concurrent use. Calls for the same device are serialised
//     within this Dispatcher; calls for different devices run in parallel.
type Dispatcher struct {
	commands  *command.Store
	states    *devicestate.Store
	executors *Registry
	observer  command.Observer
	logger    Logger
	timeout   time.Duration
	locks     keyedMutex
}

// New creates a Dispatcher.
//
// Returns:
//   - *Dispatcher: Ready-to-use dispatcher
//   - error: ErrMissingDependency if a required dependency is nil
func New(deps Deps) (*Dispatcher, error) {
	if deps.Commands == nil || deps.States == nil || deps.Executors == nil {
		return nil, fmt.Errorf("%w: commands, states and executors are required", ErrMissingDependency)
	}
	d := &Dispatcher{
		commands:  deps.Commands,
		states:    deps.States,
		executors: deps.Executors,
		observer:  deps.Observer,
		logger:    deps.Logger,
		timeout:   deps.ExecuteTimeout,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.observer == nil {
		d.observer = command.Observers(nil)
	}
	if d.timeout <= 0 {
		d.timeout = DefaultExecuteTimeout
	}
	return d, nil
}

// ProcessDeviceQueue executes pending commands of a device until its queue
// is empty.
//
// Returns:
//   - int: Number of commands that completed successfully
//   - error: Store failures, ErrCorruptionDetected from the queue, or the
//     context error. Command failures are not returned; they are recorded
//     on the commands themselves.
func (d *Dispatcher) ProcessDeviceQueue(ctx context.Context, deviceID string) (int, error) {
	unlock := d.locks.Lock(deviceID)
	defer unlock()

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		next, err := d.commands.PeekNext(ctx, deviceID)
		if errors.Is(err, command.ErrQueueEmpty) {
			break
		}
		if err != nil {
			return processed, fmt.Errorf("reading queue of %s: %w", deviceID, err)
		}

		cmd, err := d.commands.UpdateStatus(ctx, next.ID, command.StatusExecuting, nil, "")
		if errors.Is(err, command.ErrInvalidTransition) || errors.Is(err, command.ErrNotFound) {
			// Claimed, cancelled or expired since the peek.
			d.logger.Debug("command no longer claimable", "command_id", next.ID, "error", err)
			continue
		}
		if err != nil {
			return processed, fmt.Errorf("claiming command %s: %w", next.ID, err)
		}

		ok, err := d.run(ctx, cmd)
		if err != nil {
			return processed, err
		}
		if ok {
			processed++
		}
	}

	if processed > 0 {
		d.logger.Info("device queue drained", "device_id", deviceID, "completed", processed)
	}
	return processed, nil
}

// run executes one claimed command and records its outcome.
// It reports whether the command completed.
//
// Only the executor sees ctx. Everything written after the claim uses a
// context that ignores cancellation, so a caller going away cannot strand
// the command in executing.
func (d *Dispatcher) run(ctx context.Context, cmd command.Command) (bool, error) {
	rctx := context.WithoutCancel(ctx)

	state, err := d.states.Get(rctx, cmd.DeviceID)
	switch {
	case errors.Is(err, devicestate.ErrNotFound):
		return false, d.fail(rctx, cmd, ErrDeviceNotFound)
	case err != nil:
		return false, d.fail(rctx, cmd, err)
	case !state.Online():
		return false, d.fail(rctx, cmd, fmt.Errorf("%w: status %s", ErrDeviceOffline, state.Status))
	}

	executor, ok := d.executors.Lookup(cmd.Type)
	if !ok {
		return false, d.fail(rctx, cmd, fmt.Errorf("%w: %s", ErrUnknownCommandType, cmd.Type))
	}

	result, err := d.execute(ctx, executor, cmd, state)
	if err != nil {
		return false, d.fail(rctx, cmd, err)
	}

	update := devicestate.Update{}
	if result.StateUpdates != nil {
		update = *result.StateUpdates
	}
	update.LastCommandID = &cmd.ID
	if _, err := d.states.Update(rctx, cmd.DeviceID, update); err != nil {
		if errors.Is(err, devicestate.ErrNotFound) {
			err = ErrDeviceNotFound
		}
		// The executor already took effect; running it again would repeat it.
		return false, d.markFailed(rctx, cmd, fmt.Sprintf("applying state updates: %v", err))
	}

	data := result.Data
	if data == nil {
		data = map[string]any{}
	}
	done, err := d.commands.UpdateStatus(rctx, cmd.ID, command.StatusCompleted, data, "")
	if err != nil {
		return false, fmt.Errorf("completing command %s: %w", cmd.ID, err)
	}

	d.logger.Debug("command completed",
		"command_id", done.ID,
		"device_id", done.DeviceID,
		"command_type", done.Type,
	)
	d.observer.CommandFinished(rctx, done)
	return true, nil
}

// execute calls the executor with a timeout and turns panics into errors.
func (d *Dispatcher) execute(ctx context.Context, e Executor, cmd command.Command, state devicestate.DeviceState) (result Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("executor panicked", "command_id", cmd.ID, "command_type", cmd.Type, "panic", r)
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)
		}
	}()

	return e.Execute(ctx, cmd, state.Clone())
}

// fail requeues the command if it has retries left, otherwise marks it failed.
func (d *Dispatcher) fail(ctx context.Context, cmd command.Command, cause error) error {
	msg := cause.Error()

	if cmd.CanRetry() {
		requeued, err := d.commands.Requeue(ctx, cmd.ID, msg)
		if err == nil {
			d.logger.Warn("command attempt failed, requeued",
				"command_id", cmd.ID,
				"device_id", cmd.DeviceID,
				"retry_count", requeued.RetryCount,
				"max_retries", requeued.MaxRetries,
				"error", msg,
			)
			return nil
		}
		if !errors.Is(err, command.ErrRetriesExhausted) {
			return fmt.Errorf("requeueing command %s: %w", cmd.ID, err)
		}
	}

	return d.markFailed(ctx, cmd, msg)
}

// markFailed moves cmd to the terminal failed status without a retry.
func (d *Dispatcher) markFailed(ctx context.Context, cmd command.Command, msg string) error {
	failed, err := d.commands.UpdateStatus(ctx, cmd.ID, command.StatusFailed, nil, msg)
	if err != nil {
		return fmt.Errorf("failing command %s: %w", cmd.ID, err)
	}

	d.logger.Error("command failed",
		"command_id", failed.ID,
		"device_id", failed.DeviceID,
		"command_type", failed.Type,
		"retry_count", failed.RetryCount,
		"error", msg,
	)
	d.observer.CommandFinished(ctx, failed)
	return nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
