package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
)

// Built-in command types.
const (
	TypeTurnOn         = "turn_on"
	TypeTurnOff        = "turn_off"
	TypeSetTemperature = "set_temperature"
	TypeSetBrightness  = "set_brightness"
	TypeLock           = "lock"
	TypeUnlock         = "unlock"
	TypePing           = "ping"
)

// Defaults for parameters the caller may omit.
const (
	DefaultTemperature = 20.0
	DefaultBrightness  = 50.0
)

// NewBuiltinRegistry returns a Registry holding the simulated executors.
// now stamps ping replies; nil selects time.Now.
func NewBuiltinRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	r := NewRegistry()
	builtins := map[string]Executor{
		TypeTurnOn:         attributeSetter("power", "on"),
		TypeTurnOff:        attributeSetter("power", "off"),
		TypeLock:           attributeSetter("locked", true),
		TypeUnlock:         attributeSetter("locked", false),
		TypeSetTemperature: numericSetter("temperature", DefaultTemperature, nil),
		TypeSetBrightness:  numericSetter("brightness", DefaultBrightness, &numericRange{0, 100}),
		TypePing:           pingExecutor(now),
	}
	for t, e := range builtins {
		// Types are distinct constants, so Register cannot fail here.
		_ = r.Register(t, e) //nolint:errcheck // see above
	}
	return r
}

// attributeSetter sets a fixed attribute value.
func attributeSetter(attr string, value any) Executor {
	return ExecutorFunc(func(_ context.Context, _ command.Command, _ devicestate.DeviceState) (Result, error) {
		return Result{
			Data:         map[string]any{attr: value},
			StateUpdates: &devicestate.Update{Attributes: map[string]any{attr: value}},
		}, nil
	})
}

type numericRange struct {
	min, max float64
}

// numericSetter copies a numeric parameter into the attribute of the same
// name, using def when the parameter is absent.
func numericSetter(param string, def float64, bounds *numericRange) Executor {
	return ExecutorFunc(func(_ context.Context, cmd command.Command, _ devicestate.DeviceState) (Result, error) {
		value := def
		if raw, ok := cmd.Parameters[param]; ok {
			v, err := toFloat(raw)
			if err != nil {
				return Result{}, fmt.Errorf("%w: %s: %w", ErrInvalidParameter, param, err)
			}
			value = v
		}
		if bounds != nil && (value < bounds.min || value > bounds.max) {
			return Result{}, fmt.Errorf("%w: %s %v outside [%v, %v]",
				ErrInvalidParameter, param, value, bounds.min, bounds.max)
		}
		return Result{
			Data:         map[string]any{param: value},
			StateUpdates: &devicestate.Update{Attributes: map[string]any{param: value}},
		}, nil
	})
}

func pingExecutor(now func() time.Time) Executor {
	return ExecutorFunc(func(_ context.Context, _ command.Command, _ devicestate.DeviceState) (Result, error) {
		return Result{
			Data: map[string]any{
				"response":  "pong",
				"timestamp": now().UTC().Format(time.RFC3339Nano),
			},
		}, nil
	})
}

// toFloat accepts the numeric shapes a parameter can take after JSON
// decoding or direct construction.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
