// Package telemetry periodically records per-device output statistics.
//
// Every interval the Reporter writes one device_output point per registered
// device (frames flushed and published, flush and render errors, missed
// ticks, active flag) and, when a bus is attached, one event_bus point with
// the bus counters.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/device"
	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/influxdb"
)

// DefaultInterval is used when ReporterConfig.Interval is zero.
const DefaultInterval = 10 * time.Second

// MeasurementEventBus is the measurement holding event bus counters.
const MeasurementEventBus = "event_bus"

// Writer stores telemetry points. *influxdb.Client implements it.
type Writer interface {
	WriteDeviceOutput(s influxdb.DeviceOutputSample)
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// DeviceSource lists the devices to report on. *device.Registry implements it.
type DeviceSource interface {
	List() []*device.Device
}

// BusStats reports event bus counters. *events.Bus implements it.
type BusStats interface {
	Stats() events.Stats
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Debug(msg string, args ...any)
}

// ReporterConfig holds configuration for the reporter.
type ReporterConfig struct {
	// Interval between reports. Default: 10 seconds.
	Interval time.Duration

	Devices DeviceSource
	Writer  Writer

	// Bus is optional.
	Bus BusStats
}

// Reporter writes device statistics at a fixed interval.
type Reporter struct {
	interval time.Duration
	devices  DeviceSource
	writer   Writer
	bus      BusStats

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter. Call Start to begin reporting.
func NewReporter(cfg ReporterConfig) *Reporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reporter{
		interval: interval,
		devices:  cfg.Devices,
		writer:   cfg.Writer,
		bus:      cfg.Bus,
		done:     make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop ends reporting and writes one final report.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.ReportNow()
	})
}

// SetLogger sets the logger for the reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Reporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.ReportNow()
		}
	}
}

// ReportNow writes one point per device, plus the bus point if configured.
func (r *Reporter) ReportNow() {
	now := time.Now()

	var n int
	if r.devices != nil {
		for _, d := range r.devices.List() {
			r.writer.WriteDeviceOutput(sample(d, now))
			n++
		}
	}

	if r.bus != nil {
		s := r.bus.Stats()
		// #nosec G115 -- counters stay far below MaxInt64
		r.writer.WritePoint(MeasurementEventBus, nil, map[string]any{
			"published":   int64(s.Published),
			"delivered":   int64(s.Delivered),
			"dropped":     int64(s.Dropped),
			"subscribers": s.Subscribers,
		}, now)
	}

	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug("telemetry reported", "devices", n)
	}
}

func sample(d *device.Device, now time.Time) influxdb.DeviceOutputSample {
	st := d.Stats()
	return influxdb.DeviceOutputSample{
		DeviceID:        d.ID(),
		Type:            d.Type(),
		Active:          st.Active,
		FramesFlushed:   st.FramesFlushed,
		FramesPublished: st.FramesPublished,
		FlushErrors:     st.FlushErrors,
		RenderErrors:    st.RenderErrors,
		MissedTicks:     st.MissedTicks,
		Time:            now,
	}
}
