package command

import (
	"context"
	"time"
)

// Observer is notified after a command reaches a terminal status.
// Implementations must not block for long: they run on the caller's
// goroutine, inside queue processing.
type Observer interface {
	CommandFinished(ctx context.Context, cmd Command)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, cmd Command)

// CommandFinished calls f(ctx, cmd).
func (f ObserverFunc) CommandFinished(ctx context.Context, cmd Command) {
	f(ctx, cmd)
}

// Observers fans a notification out to several observers in order.
type Observers []Observer

// CommandFinished notifies every non-nil observer.
func (o Observers) CommandFinished(ctx context.Context, cmd Command) {
	for _, obs := range o {
		if obs != nil {
			obs.CommandFinished(ctx, cmd)
		}
	}
}

// Duration returns how long the command spent executing, or zero when it
// never started or has not finished.
func (c Command) Duration() time.Duration {
	if c.StartedAt == nil || c.CompletedAt == nil {
		return 0
	}
	return c.CompletedAt.Sub(*c.StartedAt)
}
