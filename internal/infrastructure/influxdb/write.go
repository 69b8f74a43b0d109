package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceOutput is the measurement holding per-device output counters.
const MeasurementDeviceOutput = "device_output"

// DeviceOutputSample is one snapshot of a device's output counters.
// Counters are cumulative since the device was created.
type DeviceOutputSample struct {
	DeviceID string
	Type     string
	Active   bool

	FramesFlushed   uint64
	FramesPublished uint64
	FlushErrors     uint64
	RenderErrors    uint64
	MissedTicks     uint64

	Time time.Time
}

// WriteDeviceOutput queues one device_output point.
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteDeviceOutput(s DeviceOutputSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceOutputPoint(s))
}

// WritePoint writes a custom point with full control over tags and fields.
// A zero timestamp means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func deviceOutputPoint(s DeviceOutputSample) *write.Point {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	// #nosec G115 -- counters stay far below MaxInt64
	return write.NewPoint(
		MeasurementDeviceOutput,
		map[string]string{
			"device_id": s.DeviceID,
			"type":      s.Type,
		},
		map[string]any{
			"active":           s.Active,
			"frames_flushed":   int64(s.FramesFlushed),
			"frames_published": int64(s.FramesPublished),
			"flush_errors":     int64(s.FlushErrors),
			"render_errors":    int64(s.RenderErrors),
			"missed_ticks":     int64(s.MissedTicks),
		},
		ts,
	)
}
