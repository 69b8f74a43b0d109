package pixel

import "math"

// Channel bounds for a frame.
const (
	MinChannel = 0
	MaxChannel = 255
)

// RGB is one pixel as red, green, blue channels.
type RGB [3]float64

// Frame is a sequence of pixels ready for a device.
type Frame []RGB

// Zero returns an all-black frame of n pixels.
func Zero(n int) Frame {
	if n < 0 {
		n = 0
	}
	return make(Frame, n)
}

// Clone returns a copy of the frame.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// IsZero reports whether every channel of every pixel is zero.
func (f Frame) IsZero() bool {
	for _, p := range f {
		if p[0] != 0 || p[1] != 0 || p[2] != 0 {
			return false
		}
	}
	return true
}

// Bytes packs the frame as 8-bit RGB, three bytes per pixel.
// Channels are rounded to the nearest integer and clamped.
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, len(f)*3)
	for _, p := range f {
		for _, c := range p {
			out = append(out, byte(clamp(math.Round(c))))
		}
	}
	return out
}

// Ints returns the frame as integer triples, the shape used in JSON payloads.
func (f Frame) Ints() [][3]int {
	out := make([][3]int, len(f))
	for i, p := range f {
		for c := range p {
			out[i][c] = int(clamp(math.Round(p[c])))
		}
	}
	return out
}

// clamp limits a channel value to [MinChannel, MaxChannel].
// NaN maps to zero.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return MinChannel
	case v < MinChannel:
		return MinChannel
	case v > MaxChannel:
		return MaxChannel
	default:
		return v
	}
}

// rotate returns f circularly shifted by k positions: pixel i moves to i+k.
func rotate(f Frame, k int) Frame {
	n := len(f)
	if n == 0 {
		return f
	}
	k %= n
	if k < 0 {
		k += n
	}
	if k == 0 {
		return f
	}
	out := make(Frame, n)
	copy(out[k:], f[:n-k])
	copy(out[:k], f[n-k:])
	return out
}
