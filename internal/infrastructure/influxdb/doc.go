// Package influxdb records command outcomes in InfluxDB.
//
// It wraps the influxdb-client-go v2 non-blocking write API. Every command
// that reaches a terminal status becomes one point:
//
//	command_execution,command_type=set_temperature,device_id=D1,status=completed duration_ms=12.5,retry_count=0i
//
// The Client implements command.Observer, so it is registered alongside the
// other dispatcher observers:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	observers = append(observers, client)
//
// Writes are batched (batch_size, flush_interval) and never block the
// dispatcher. Asynchronous write errors are delivered to the SetOnError
// callback.
package influxdb
