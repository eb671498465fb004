// Package influxdb records device state history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. The
// Client satisfies coordinator.StateRecorder: after every successful
// cloud refresh each numeric or boolean capability value becomes one
// point in the device_state measurement, tagged by device_id, namespace,
// name and instance.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // state history off
//	}
//	defer client.Close()
//
//	coord, err := coordinator.New(coordinator.Options{
//	    Client:   cloudClient,
//	    Recorder: client,
//	})
//
// # Error Handling
//
// Writes are batched according to batch_size and flush_interval. Batch
// errors are delivered to the SetOnError callback. Connection and health
// check errors are returned directly.
package influxdb
