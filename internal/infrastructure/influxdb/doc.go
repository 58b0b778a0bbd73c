// Package influxdb writes FrostLux telemetry to an InfluxDB 2.x bucket.
//
// It wraps influxdb-client-go v2 with connection checks and batched,
// non-blocking writes. Batch size and flush interval come from the
// influxdb config section. Write failures are reported through the
// SetOnError callback, never to the caller.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WritePoint("command", tags, fields)
package influxdb
