package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// Logger defines the logging interface used by devices and the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the fire-and-forget side of the event bus.
type Publisher interface {
	Publish(ev events.Event)
}

// MissedTickPolicy decides what a device loop does with deadlines that
// passed while it was busy.
type MissedTickPolicy string

const (
	// MissedTicksCoalesce drops overdue deadlines and runs one tick.
	MissedTicksCoalesce MissedTickPolicy = "coalesce"

	// MissedTicksCatchUp runs one tick per overdue deadline, back to back.
	MissedTicksCatchUp MissedTickPolicy = "catch_up"
)

// Options carries the collaborators a Device needs beyond its config.
type Options struct {
	Events      Publisher
	Logger      Logger
	MissedTicks MissedTickPolicy
}

// Stats is a snapshot of a device's output counters.
type Stats struct {
	Active          bool
	FramesFlushed   uint64
	FramesPublished uint64
	FlushErrors     uint64
	RenderErrors    uint64
	MissedTicks     uint64
	LastFrameAt     time.Time
}

// Device drives one Output from one Effect at a fixed refresh rate.
//
// A device is idle until an effect is set (or Activate is called). While
// active, a dedicated goroutine ticks at Config.RefreshRate: each tick
// assembles a frame from the effect, flushes it to the output and publishes
// an events.DeviceUpdate.
//
// Thread Safety: All methods are safe for concurrent use. Lifecycle
// operations are serialised; ticks never overlap.
type Device struct {
	id     string
	typ    string
	config Config
	output Output

	events Publisher
	logger Logger
	policy MissedTickPolicy

	// lifeMu serialises SetEffect, ClearEffect, Activate and Deactivate.
	lifeMu sync.Mutex

	// mu guards the fields read by the tick goroutine.
	mu     sync.Mutex
	effect Effect
	active bool
	worker *worker

	flushMu sync.Mutex

	framesFlushed   atomic.Uint64
	framesPublished atomic.Uint64
	flushErrors     atomic.Uint64
	renderErrors    atomic.Uint64
	missedTicks     atomic.Uint64
	lastFrameAt     atomic.Int64

	// lastErr suppresses repeated identical warnings; touched only by ticks.
	lastErr string

	// missedThrough is the latest deadline already counted as missed;
	// touched only by the scheduling loop.
	missedThrough time.Time
}

// worker is one run of the scheduling loop.
type worker struct {
	stop chan struct{}
	done chan struct{}
}

// New creates an idle device. cfg must already be validated.
func New(id, typ string, cfg Config, out Output, opts Options) *Device {
	d := &Device{
		id:     id,
		typ:    typ,
		config: cfg,
		output: out,
		events: opts.Events,
		logger: opts.Logger,
		policy: opts.MissedTicks,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.policy == "" {
		d.policy = MissedTicksCoalesce
	}
	return d
}

// ID returns the device identifier.
func (d *Device) ID() string { return d.id }

// Type returns the device type name.
func (d *Device) Type() string { return d.typ }

// Name returns the configured friendly name.
func (d *Device) Name() string { return d.config.Name }

// Config returns the validated device config.
func (d *Device) Config() Config { return d.config }

// RefreshRate returns the configured refresh rate in Hz.
func (d *Device) RefreshRate() int { return d.config.RefreshRate }

// MaxBrightness returns the configured brightness ceiling in [0,1].
func (d *Device) MaxBrightness() float64 { return d.config.MaxBrightness }

// PixelCount returns the output's pixel count.
func (d *Device) PixelCount() int { return d.output.PixelCount() }

// Output returns the device's output.
func (d *Device) Output() Output { return d.output }

// IsActive reports whether the scheduling loop is running.
func (d *Device) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// ActiveEffect returns the current effect, or nil.
func (d *Device) ActiveEffect() Effect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.effect
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	s := Stats{
		Active:          d.IsActive(),
		FramesFlushed:   d.framesFlushed.Load(),
		FramesPublished: d.framesPublished.Load(),
		FlushErrors:     d.flushErrors.Load(),
		RenderErrors:    d.renderErrors.Load(),
		MissedTicks:     d.missedTicks.Load(),
	}
	if ns := d.lastFrameAt.Load(); ns != 0 {
		s.LastFrameAt = time.Unix(0, ns)
	}
	return s
}

// SetEffect makes eff the device's effect and activates the device if idle.
// The previous effect, if any, is deactivated before eff is activated. A nil
// effect clears instead.
// Returns ErrNotActivated if the output has no pixels.
func (d *Device) SetEffect(eff Effect) error {
	if eff == nil {
		return d.ClearEffect()
	}

	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	n := d.output.PixelCount()
	if n <= 0 {
		return fmt.Errorf("setting effect on %s: %w", d.id, ErrNotActivated)
	}

	d.mu.Lock()
	prev := d.effect
	d.effect = eff
	d.mu.Unlock()

	if prev != nil {
		prev.Deactivate()
	}
	eff.Activate(n)

	d.activateLocked()
	return nil
}

// ClearEffect releases the current effect. If the device was active it is
// stopped, blanked with one all-zero frame and left idle. The zero frame is
// flushed unless preview-only, then published; a failed flush is returned and
// nothing is published.
func (d *Device) ClearEffect() error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	d.mu.Lock()
	eff := d.effect
	d.effect = nil
	wasActive := d.active
	d.mu.Unlock()

	// Stop ticking before blanking so no stale frame lands after the zero frame.
	d.deactivateLocked()

	if eff != nil {
		eff.Deactivate()
	}

	if !wasActive {
		return nil
	}

	blank := pixel.Zero(d.output.PixelCount())

	if !d.config.PreviewOnly {
		if err := d.flush(blank); err != nil {
			return err
		}
	}
	d.publish(blank)

	d.logger.Debug("device effect cleared", "device_id", d.id)
	return nil
}

// Activate starts the scheduling loop. It is a no-op if already active.
func (d *Device) Activate() {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	d.activateLocked()
}

// Deactivate stops the scheduling loop and waits for it to exit. No tick
// runs after it returns. Calling it on an idle device is a no-op.
func (d *Device) Deactivate() {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	d.deactivateLocked()
}

// Close clears the effect and closes the output if it implements io.Closer.
func (d *Device) Close() error {
	clearErr := d.ClearEffect()

	var closeErr error
	if c, ok := d.output.(io.Closer); ok {
		closeErr = c.Close()
	}
	return errors.Join(clearErr, closeErr)
}

func (d *Device) activateLocked() {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return
	}
	w := &worker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	d.active = true
	d.worker = w
	d.mu.Unlock()

	go d.run(w, d.config.Interval())

	d.logger.Debug("device activated",
		"device_id", d.id,
		"refresh_rate", d.config.RefreshRate,
	)
}

func (d *Device) deactivateLocked() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	w := d.worker
	d.active = false
	d.worker = nil

	close(w.stop)
	d.mu.Unlock()

	<-w.done

	d.logger.Debug("device deactivated", "device_id", d.id)
}

// run is the scheduling loop. Deadlines advance by a fixed interval from the
// activation time, so processing time never stretches the period.
func (d *Device) run(w *worker, interval time.Duration) {
	defer close(w.done)

	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-timer.C:
		}

		// select picks at random when both are ready.
		select {
		case <-w.stop:
			return
		default:
		}

		d.tick()

		next = d.schedule(next, interval, time.Now())
		timer.Reset(time.Until(next))
	}
}

// schedule returns the deadline following prev given the current time,
// applying the missed tick policy. Each overdue deadline is counted once,
// even when catch-up revisits it on later calls.
func (d *Device) schedule(prev time.Time, interval time.Duration, now time.Time) time.Time {
	next := prev.Add(interval)
	if !now.After(next) {
		return next
	}

	overdue := uint64(now.Sub(next) / interval)
	if overdue == 0 {
		// Late, but within one period: run straight away.
		return next
	}

	last := next.Add(time.Duration(overdue) * interval)
	if d.missedThrough.Before(next) {
		d.missedTicks.Add(overdue)
	} else if last.After(d.missedThrough) {
		d.missedTicks.Add(uint64(last.Sub(d.missedThrough) / interval))
	}
	if last.After(d.missedThrough) {
		d.missedThrough = last
	}

	if d.policy == MissedTicksCatchUp {
		return next
	}
	return last
}

// tick runs one scheduling step.
func (d *Device) tick() {
	d.mu.Lock()
	eff := d.effect
	d.mu.Unlock()

	if eff == nil {
		return
	}

	frame, err := pixel.Assemble(eff, pixel.Options{
		MaxBrightness: d.config.MaxBrightness,
		CenterOffset:  d.config.CenterOffset,
		ForceRefresh:  d.config.ForceRefresh,
	}, d.output.PixelCount())
	if err != nil {
		d.renderErrors.Add(1)
		d.warnOnce("frame assembly failed", err)
		return
	}
	if frame == nil {
		return
	}

	if !d.config.PreviewOnly {
		if err := d.flush(frame); err != nil {
			d.warnOnce("flush failed", err)
			return
		}
	}
	d.lastErr = ""
	d.publish(frame)
}

// flush pushes frame to the output. Errors wrap ErrFlushFailed.
func (d *Device) flush(frame pixel.Frame) error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	if err := d.output.Flush(frame); err != nil {
		d.flushErrors.Add(1)
		return fmt.Errorf("%w: %s: %v", ErrFlushFailed, d.id, err)
	}
	d.framesFlushed.Add(1)
	d.lastFrameAt.Store(time.Now().UnixNano())
	return nil
}

func (d *Device) publish(frame pixel.Frame) {
	if d.events == nil {
		return
	}
	d.events.Publish(events.DeviceUpdate{
		DeviceID:  d.id,
		Frame:     frame,
		Timestamp: time.Now().UTC(),
	})
	d.framesPublished.Add(1)
}

// warnOnce logs err at warn level the first time it is seen in a row and at
// debug level afterwards, so a broken output does not flood the log at the
// refresh rate.
func (d *Device) warnOnce(msg string, err error) {
	text := err.Error()
	if text == d.lastErr {
		d.logger.Debug(msg, "device_id", d.id, "error", err)
		return
	}
	d.lastErr = text
	d.logger.Warn(msg, "device_id", d.id, "error", err)
}
