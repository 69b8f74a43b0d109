// Package effect provides the pixel handle that effects expose to devices.
//
// Effect algorithms live elsewhere. What this package owns is the hand-off:
// an effect renders on its own goroutine and publishes complete buffers; a
// device tick reads the latest buffer and clears the dirty flag. Buffer
// implements that single-writer/single-reader protocol so a tick never sees a
// half-written buffer and never loses an update published mid-tick.
//
// The caller is whatever selects effects for a device, typically an effect
// engine holding a *device.Device from the registry: it builds an effect that
// embeds Buffer, passes it to Device.SetEffect and keeps rendering into it
// until Device.ClearEffect or another SetEffect replaces it.
package effect

import (
	"sync"

	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// Buffer is the pixel store behind an effect handle.
//
// Embed it in a concrete effect to satisfy device.Effect; the effect calls
// Publish whenever it has rendered a new frame.
//
// Thread Safety: All methods are safe for concurrent use.
type Buffer struct {
	mu         sync.Mutex
	pixels     []pixel.RGB
	dirty      bool
	gen        uint64 // incremented on every Publish
	readGen    uint64 // generation handed out by the last Pixels call
	active     bool
	pixelCount int
}

// Activate marks the buffer as owned by a device with pixelCount pixels and
// resets it to black.
func (b *Buffer) Activate(pixelCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active = true
	b.pixelCount = pixelCount
	b.pixels = make([]pixel.RGB, pixelCount)
	b.gen++
	b.dirty = true
}

// Deactivate releases the buffer from its device.
func (b *Buffer) Deactivate() {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()
}

// IsActive reports whether a device currently owns the buffer.
func (b *Buffer) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// PixelCount returns the pixel count passed to the last Activate.
func (b *Buffer) PixelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pixelCount
}

// Publish swaps in a copy of pixels as the current buffer and marks it dirty.
func (b *Buffer) Publish(pixels []pixel.RGB) {
	next := make([]pixel.RGB, len(pixels))
	copy(next, pixels)

	b.mu.Lock()
	b.pixels = next
	b.gen++
	b.dirty = true
	b.mu.Unlock()
}

// Pixels returns the current buffer. Callers must treat it as read-only;
// Publish never writes into a buffer it has handed out.
func (b *Buffer) Pixels() []pixel.RGB {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readGen = b.gen
	return b.pixels
}

// Dirty reports whether a buffer was published since the flag was last cleared.
func (b *Buffer) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// SetDirty sets the dirty flag. Clearing is ignored if a newer buffer was
// published after the last Pixels call, so that buffer is still delivered.
func (b *Buffer) SetDirty(dirty bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !dirty && b.gen != b.readGen {
		return
	}
	b.dirty = dirty
}
