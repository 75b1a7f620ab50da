// Package influxdb records device telemetry in InfluxDB 2.x.
//
// Every inbound state change (relay, power, reachability) and every
// outbound command becomes a point, giving a history the live registry
// does not keep. Telemetry is optional: with influxdb.enabled=false,
// Connect returns ErrDisabled and callers keep a nil *Client, whose write
// methods are no-ops.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("SWITCH_1", "espurna", &on, true)
//
// Writes are batched according to batch_size and flush_interval.
package influxdb
