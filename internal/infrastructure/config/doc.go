// Package config handles loading and validating the device control service
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DEVICECONTROL_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (Redis password, MQTT credentials, InfluxDB token, JWT secret)
// should be supplied through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Redis.Addr)
package config
