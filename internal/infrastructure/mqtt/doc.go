// Package mqtt provides MQTT connectivity for the device control service.
//
// The service uses the broker in two directions:
//   - Inbound: device lifecycle events (a removed device triggers cascading
//     cleanup). Messages are acknowledged only after their handler succeeds,
//     so with a persistent session an event whose cleanup failed is
//     redelivered when the client reconnects.
//   - Outbound: finished commands are published on
//     devicecontrol/command/{device_id}/{command_id} for other services.
//
// The client reconnects with backoff, restores subscriptions after a
// reconnect, and announces itself on devicecontrol/system/status with a
// Last Will so subscribers notice a crash.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.DefaultDeviceEventsTopic, 1,
//	    func(topic string, payload []byte) error {
//	        return handler.Handle(ctx, payload)
//	    })
package mqtt
