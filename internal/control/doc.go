// Package control implements the caller-facing device control operations.
//
// Service sits between transports (the REST API, tests, tooling) and the
// stores. It validates devices against the external registry and seeds
// their state on first contact, enforces the submission rules for commands
// (known priority, no submissions to devices in maintenance, a default
// retry budget), scopes command lookups to the device that owns them, and
// triggers queue processing.
//
// Usage:
//
//	svc, err := control.New(control.Deps{
//	    States:     states,
//	    Commands:   commands,
//	    Dispatcher: dispatcher,
//	    Registry:   registry.NewClient(cfg.Registry.URL, cfg.GetRegistryTimeout()),
//	    Store:      kv,
//	    MaxRetries: cfg.Dispatcher.MaxRetries,
//	})
//	cmd, err := svc.SubmitCommand(ctx, control.SubmitRequest{
//	    DeviceID: id,
//	    Type:     "set_temperature",
//	    Parameters: map[string]any{"temperature": 22},
//	    Priority: command.PriorityHigh,
//	})
package control
