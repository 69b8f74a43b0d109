// Package pixel holds the frame types and the frame assembler.
//
// A Frame is the device-ready form of an effect's output: one RGB triple per
// pixel, scaled by the device's maximum brightness, clamped to [0, 255] and
// rotated by the device's centre offset. Frames are ephemeral; they live for
// one flush and one update event.
//
// Assemble is pure apart from the dirty flag it resets on its Source, which
// is how an idle effect avoids a flush on every tick.
package pixel
