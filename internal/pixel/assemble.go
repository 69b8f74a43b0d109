package pixel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActivated is returned when a frame is requested for a device whose
	// pixel count is undefined.
	ErrNotActivated = errors.New("pixel: device pixel count undefined")

	// ErrShortBuffer is returned when an effect exposes fewer pixels than the
	// device needs.
	ErrShortBuffer = errors.New("pixel: effect buffer shorter than pixel count")
)

// Source is the read side of an effect as seen by the assembler.
type Source interface {
	// Dirty reports whether the pixels changed since the last frame.
	Dirty() bool

	// Pixels returns the latest complete pixel buffer. It must not be mutated.
	Pixels() []RGB

	// SetDirty sets the dirty flag once the buffer has been copied.
	SetDirty(dirty bool)
}

// Options are the device settings the assembler applies.
type Options struct {
	MaxBrightness float64
	CenterOffset  int
	ForceRefresh  bool
}

// Assemble builds a frame of pixelCount pixels from src.
//
// It returns (nil, nil) when src is not dirty, which tells the caller to skip
// flushing and publishing this tick. Otherwise each channel is multiplied by
// MaxBrightness, clamped to [0, 255], and the frame is rotated by CenterOffset.
// The dirty flag is then reset, or left set when ForceRefresh is true.
func Assemble(src Source, opts Options, pixelCount int) (Frame, error) {
	if src == nil || !src.Dirty() {
		return nil, nil
	}
	if pixelCount <= 0 {
		return nil, ErrNotActivated
	}

	pixels := src.Pixels()
	if len(pixels) < pixelCount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(pixels), pixelCount)
	}

	frame := make(Frame, pixelCount)
	for i := range frame {
		for c := 0; c < 3; c++ {
			frame[i][c] = clamp(pixels[i][c] * opts.MaxBrightness)
		}
	}

	if opts.CenterOffset != 0 {
		frame = rotate(frame, opts.CenterOffset)
	}

	src.SetDirty(opts.ForceRefresh)

	return frame, nil
}
