package device

import "github.com/nerrad567/gray-logic-pixels/internal/pixel"

// Output is the hardware (or virtual) side of a device. Each device type
// provides one.
//
// Flush is only ever called from one goroutine at a time per device.
// Outputs that hold resources may also implement io.Closer; Close is called
// when the device is removed.
type Output interface {
	// PixelCount returns the number of addressable pixels. Zero or less means
	// the output cannot accept frames yet.
	PixelCount() int

	// Flush pushes one frame of exactly PixelCount pixels to the hardware.
	Flush(frame pixel.Frame) error
}

// Effect is the handle a device reads pixels from. internal/effect.Buffer
// implements it.
type Effect interface {
	Activate(pixelCount int)
	Deactivate()
	Pixels() []pixel.RGB
	Dirty() bool
	SetDirty(dirty bool)
}
