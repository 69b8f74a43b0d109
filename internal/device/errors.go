package device

import (
	"errors"

	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceExists) {
//	    // handle duplicate id
//	}
var (
	// ErrInvalidConfig is returned when a device config fails validation.
	ErrInvalidConfig = errors.New("device: invalid config")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrUnknownType is returned when no constructor is registered for a device type.
	ErrUnknownType = errors.New("device: unknown type")

	// ErrTypeExists is returned when a device type name is registered twice.
	ErrTypeExists = errors.New("device: type already registered")

	// ErrNotActivated is returned when an operation needs a pixel count the
	// device does not have yet.
	ErrNotActivated = pixel.ErrNotActivated

	// ErrFlushFailed wraps errors returned by an output's Flush.
	ErrFlushFailed = errors.New("device: flush failed")
)
