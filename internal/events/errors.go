package events

import "errors"

// Domain errors for the event bus.
var (
	// ErrBusClosed is returned when publishing or subscribing after Close.
	ErrBusClosed = errors.New("events: bus closed")

	// ErrNilHandler is returned when subscribing with a nil handler.
	ErrNilHandler = errors.New("events: nil handler")
)
