package cleanup

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
)

// Logger defines the logging interface used by the cleanup package.
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

// DeviceReport describes one device cleanup.
type DeviceReport struct {
	DeviceID        string `json:"device_id"`
	CommandsDeleted int    `json:"commands_deleted"`
}

// SweepReport describes one expired-command sweep.
type SweepReport struct {
	DevicesScanned int `json:"devices_scanned"`
	EntriesPruned  int `json:"entries_pruned"`
}

// Coordinator removes device records and prunes expired command references.
//
// Thread Safety:
//   - Safe for concurrent use. A command created for a device while its
//     cleanup is running may survive the cleanup.
type Coordinator struct {
	kv       kvstore.Store
	commands *command.Store
	logger   Logger
}

// NewCoordinator creates a Coordinator. commands must share kv.
func NewCoordinator(kv kvstore.Store, commands *command.Store) *Coordinator {
	return &Coordinator{
		kv:       kv,
		commands: commands,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// CleanupDevice deletes everything stored for a device in one atomic batch:
// the state record, every command record referenced by its priority index or
// command set, both of those collections, and its membership in the device
// sets. Cleaning an already-clean device succeeds and deletes nothing.
//
// Returns:
//   - DeviceReport: Number of command records targeted
//   - error: ErrMissingDeviceID or a store failure; nothing is deleted on error
func (c *Coordinator) CleanupDevice(ctx context.Context, deviceID string) (DeviceReport, error) {
	if deviceID == "" {
		return DeviceReport{}, ErrMissingDeviceID
	}

	queued, err := c.commands.QueuedIDs(ctx, deviceID)
	if err != nil {
		return DeviceReport{}, err
	}
	known, err := c.commands.KnownIDs(ctx, deviceID)
	if err != nil {
		return DeviceReport{}, err
	}
	ids := union(queued, known)

	err = c.kv.Atomic(ctx, func(b kvstore.Batch) {
		if len(ids) > 0 {
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = command.CommandKey(id)
			}
			b.Del(keys...)
		}
		b.Del(
			command.QueueKey(deviceID),
			command.DeviceCommandsKey(deviceID),
			devicestate.StateKey(deviceID),
		)
		b.SRem(devicestate.AllDevicesKey, deviceID)
		b.SRem(devicestate.OnlineDevicesKey, deviceID)
	})
	if err != nil {
		return DeviceReport{}, fmt.Errorf("cleaning up device %s: %w", deviceID, err)
	}

	c.logger.Info("device cleaned up",
		"device_id", deviceID,
		"commands_deleted", len(ids),
	)
	return DeviceReport{DeviceID: deviceID, CommandsDeleted: len(ids)}, nil
}

// CleanupExpiredCommands walks every known device and removes priority
// index and command set entries whose command record no longer exists.
//
// A failure on one device is logged and the sweep continues; the first such
// error is returned together with the partial report.
func (c *Coordinator) CleanupExpiredCommands(ctx context.Context) (SweepReport, error) {
	devices, err := c.kv.SMembers(ctx, devicestate.AllDevicesKey)
	if err != nil {
		return SweepReport{}, fmt.Errorf("listing devices: %w", err)
	}

	var report SweepReport
	var firstErr error
	for _, deviceID := range devices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pruned, err := c.pruneDevice(ctx, deviceID)
		report.DevicesScanned++
		report.EntriesPruned += pruned
		if err != nil {
			c.logger.Error("pruning expired commands failed", "device_id", deviceID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if report.EntriesPruned > 0 {
		c.logger.Info("expired commands pruned",
			"devices", report.DevicesScanned,
			"entries", report.EntriesPruned,
		)
	}
	return report, firstErr
}

// pruneDevice drops dangling references held by one device.
func (c *Coordinator) pruneDevice(ctx context.Context, deviceID string) (int, error) {
	queued, err := c.commands.QueuedIDs(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	known, err := c.commands.KnownIDs(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	var goneQueued, goneKnown []string
	gone := make(map[string]bool)
	for _, id := range union(queued, known) {
		exists, err := c.commands.Exists(ctx, id)
		if err != nil {
			return 0, err
		}
		if !exists {
			gone[id] = true
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	for _, id := range queued {
		if gone[id] {
			goneQueued = append(goneQueued, id)
		}
	}
	for _, id := range known {
		if gone[id] {
			goneKnown = append(goneKnown, id)
		}
	}

	err = c.kv.Atomic(ctx, func(b kvstore.Batch) {
		if len(goneQueued) > 0 {
			b.ZRem(command.QueueKey(deviceID), goneQueued...)
		}
		if len(goneKnown) > 0 {
			b.SRem(command.DeviceCommandsKey(deviceID), goneKnown...)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("pruning device %s: %w", deviceID, err)
	}

	c.logger.Debug("pruned expired command references",
		"device_id", deviceID,
		"queue_entries", len(goneQueued),
		"set_entries", len(goneKnown),
	)
	return len(goneQueued) + len(goneKnown), nil
}

// union returns the distinct ids of a and b, a's order first.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
