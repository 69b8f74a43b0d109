package device

import (
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// fakeOutput records every frame it is asked to flush.
type fakeOutput struct {
	mu      sync.Mutex
	count   int
	frames  []pixel.Frame
	err     error
	closed  bool
	onFlush func()
}

func newFakeOutput(count int) *fakeOutput {
	return &fakeOutput{count: count}
}

func (o *fakeOutput) PixelCount() int { return o.count }

func (o *fakeOutput) Flush(frame pixel.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, frame.Clone())
	if o.onFlush != nil {
		o.onFlush()
	}
	return o.err
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *fakeOutput) flushes() []pixel.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]pixel.Frame(nil), o.frames...)
}

func (o *fakeOutput) flushCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func (o *fakeOutput) lastFrame() pixel.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.frames) == 0 {
		return nil
	}
	return o.frames[len(o.frames)-1]
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// eventRecorder is a Publisher that keeps every DeviceUpdate.
type eventRecorder struct {
	mu      sync.Mutex
	updates []events.DeviceUpdate
}

func (r *eventRecorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := ev.(events.DeviceUpdate); ok {
		r.updates = append(r.updates, u)
	}
}

func (r *eventRecorder) all() []events.DeviceUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.DeviceUpdate(nil), r.updates...)
}

func (r *eventRecorder) last() (events.DeviceUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return events.DeviceUpdate{}, false
	}
	return r.updates[len(r.updates)-1], true
}

var errHardware = errors.New("strip unplugged")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "Test Strip"
	return cfg
}
