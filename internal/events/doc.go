// Package events consumes device lifecycle events and turns device removals
// into cascading cleanup.
//
// Delivery is at least once. A Handler reports success only after the
// cleanup has committed, and each Source acknowledges a message only on
// success, so a failed cleanup is redelivered and retried by the broker.
// Cleanup is idempotent, which makes repeated deliveries harmless.
//
// Messages that can never succeed (undecodable payloads, events without a
// device id, event types this service does not act on) are acknowledged
// and logged so they do not circulate forever.
//
// Two sources are provided:
//   - MQTTSource subscribes to a topic through the shared MQTT client.
//   - AMQPSource binds a durable queue to the device events exchange on
//     RabbitMQ, as published by the device registry.
package events
