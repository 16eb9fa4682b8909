package channel

import "errors"

// Channel errors.
var (
	// ErrNoHost is returned when a Config has no Host.
	ErrNoHost = errors.New("channel: no host configured")

	// ErrUnsupportedSensor is returned when a sensor type cannot be used in
	// the requested role.
	ErrUnsupportedSensor = errors.New("channel: sensor type not supported for role")

	// ErrUnsupportedValue is returned when a value kind cannot be sent on a
	// channel of this sensor type.
	ErrUnsupportedValue = errors.New("channel: value kind not supported by sensor type")

	// ErrValueOutOfRange is returned when a value does not fit its page field.
	ErrValueOutOfRange = errors.New("channel: value out of range")

	// ErrNotOpen is returned when sending on a channel that is not open or
	// not tracking.
	ErrNotOpen = errors.New("channel: channel not open")

	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("channel: already initialized")
)
