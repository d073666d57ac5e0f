package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
)

// Result is the outcome of a successful execution.
type Result struct {
	// Data is stored as the command result.
	Data map[string]any
	// StateUpdates, when non-nil, is merged into the device state.
	StateUpdates *devicestate.Update
}

// Executor performs the effect of one command type.
// A non-nil error marks the attempt as failed.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command, state devicestate.DeviceState) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, cmd command.Command, state devicestate.DeviceState) (Result, error)

// Execute calls f(ctx, cmd, state).
func (f ExecutorFunc) Execute(ctx context.Context, cmd command.Command, state devicestate.DeviceState) (Result, error) {
	return f(ctx, cmd, state)
}

// Registry maps command types to executors.
//
// Thread Safety:
//   - Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds the executor for a command type.
func (r *Registry) Register(commandType string, e Executor) error {
	if commandType == "" || e == nil {
		return fmt.Errorf("registering executor: command type and executor are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[commandType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateExecutor, commandType)
	}
	r.executors[commandType] = e
	return nil
}

// Lookup returns the executor for a command type.
func (r *Registry) Lookup(commandType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[commandType]
	return e, ok
}

// Types returns the registered command types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
