package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
)

// MeasurementCommandExecution is the measurement holding command outcomes.
const MeasurementCommandExecution = "command_execution"

// CommandPoint builds the telemetry point for a finished command. The point
// is timestamped with the command's completion time when it has one.
func CommandPoint(cmd command.Command, now time.Time) *write.Point {
	ts := now
	if cmd.CompletedAt != nil {
		ts = *cmd.CompletedAt
	}
	return write.NewPoint(
		MeasurementCommandExecution,
		map[string]string{
			"device_id":    cmd.DeviceID,
			"command_type": cmd.Type,
			"status":       string(cmd.Status),
		},
		map[string]any{
			"duration_ms": float64(cmd.Duration().Microseconds()) / 1000,
			"retry_count": cmd.RetryCount,
		},
		ts,
	)
}

// WriteCommandOutcome queues a command_execution point. Dropped silently
// once the client is closed.
func (c *Client) WriteCommandOutcome(cmd command.Command) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(CommandPoint(cmd, time.Now()))
}

// CommandFinished implements command.Observer.
func (c *Client) CommandFinished(_ context.Context, cmd command.Command) {
	c.WriteCommandOutcome(cmd)
}

var _ command.Observer = (*Client)(nil)
