// Package influxdb provides InfluxDB connectivity for Gray Logic Pixels.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health monitoring and batched writes of output telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceOutput(influxdb.DeviceOutputSample{
//	    DeviceID:      "desk",
//	    Type:          "mqtt",
//	    FramesFlushed: 1200,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback wrapped in ErrWriteFailed. Connection and health check errors are
// returned directly.
package influxdb
