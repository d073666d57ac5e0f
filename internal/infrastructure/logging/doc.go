// Package logging builds the structured logger shared by every component of
// the device control service.
//
// A Logger is a thin wrapper over log/slog. Each entry carries the service
// name and build version, and components derive child loggers tagged with
// their own name:
//
//	log := logging.New(cfg.Logging, version)
//	dispatchLog := log.Component("dispatch")
//	dispatchLog.Info("queue drained", "device_id", id, "processed", n)
//
// The logging section of config.yaml selects the level (debug, info, warn,
// error), the encoding (json or text) and the stream (stdout or stderr).
//
// Connection strings such as the AMQP URL embed credentials. Redact them
// before they reach a log call.
package logging
