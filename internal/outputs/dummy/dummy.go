// Package dummy provides the "dummy" device type: an output that keeps the
// last frame in memory instead of driving hardware. It is useful for
// previews, tests and configurations without real LEDs.
//
// Options (in the device config map):
//
//	pixel_count: 60
package dummy

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-pixels/internal/device"
	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// TypeName is the registry name of this device type.
const TypeName = "dummy"

func init() {
	device.RegisterType(TypeName, New)
}

// Options are the dummy type's own config fields.
type Options struct {
	PixelCount int `yaml:"pixel_count"`
}

// Output stores frames in memory.
type Output struct {
	pixelCount int

	mu      sync.Mutex
	last    pixel.Frame
	flushes uint64
}

// New builds a dummy output from a raw device config map.
func New(raw map[string]any, _ device.TypeEnv) (device.Output, error) {
	var opts Options
	if err := device.DecodeOptions(raw, &opts); err != nil {
		return nil, err
	}
	if opts.PixelCount < 0 {
		return nil, fmt.Errorf("%w: pixel_count %d must not be negative", device.ErrInvalidConfig, opts.PixelCount)
	}
	return &Output{pixelCount: opts.PixelCount}, nil
}

// PixelCount returns the configured pixel count.
func (o *Output) PixelCount() int { return o.pixelCount }

// Flush records frame as the latest output.
func (o *Output) Flush(frame pixel.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = frame.Clone()
	o.flushes++
	return nil
}

// LastFrame returns a copy of the most recently flushed frame, or nil.
func (o *Output) LastFrame() pixel.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last.Clone()
}

// Flushes returns how many frames have been flushed.
func (o *Output) Flushes() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushes
}
