package events

import (
	"time"

	"github.com/nerrad567/gray-logic-pixels/internal/pixel"
)

// Type identifies a kind of event.
type Type string

// Event types.
const (
	TypeDeviceUpdate Type = "device_update"
	TypeShutdown     Type = "shutdown"
)

// Event is anything that can travel on the bus.
type Event interface {
	Type() Type
}

// DeviceUpdate carries the frame a device just pushed to its output.
type DeviceUpdate struct {
	DeviceID  string
	Frame     pixel.Frame
	Timestamp time.Time
}

// Type implements Event.
func (DeviceUpdate) Type() Type { return TypeDeviceUpdate }

// Shutdown asks every device to clear its effect.
type Shutdown struct {
	Reason string
}

// Type implements Event.
func (Shutdown) Type() Type { return TypeShutdown }

// Handler receives events for one subscription.
type Handler func(Event)
