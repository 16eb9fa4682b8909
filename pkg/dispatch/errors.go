package dispatch

import "errors"

// Dispatcher errors.
var (
	// ErrNoFinder is returned by New when Config.Finder is nil.
	ErrNoFinder = errors.New("dispatch: no link finder configured")

	// ErrInvalidTimeouts is returned by New when the initialization timeout
	// does not leave room for the reset settle time.
	ErrInvalidTimeouts = errors.New("dispatch: initialization timeout must exceed reset settle time")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatch: closed")

	// ErrLinkAbsent is returned by commands issued while no radio is
	// connected.
	ErrLinkAbsent = errors.New("dispatch: no ANT radio connected")

	// ErrNotInitialized is returned by channel commands before the network
	// key handshake succeeded.
	ErrNotInitialized = errors.New("dispatch: radio not initialized")

	// ErrNoFreeChannel is returned when every channel slot is occupied.
	ErrNoFreeChannel = errors.New("dispatch: no free channel")

	// ErrDuplicateMasterChannel is returned when a master channel for the
	// sensor type is already open.
	ErrDuplicateMasterChannel = errors.New("dispatch: master channel already open for sensor type")

	// ErrNoMasterChannel is returned when a value is sent for a sensor type
	// without a master channel.
	ErrNoMasterChannel = errors.New("dispatch: no master channel for sensor type")

	// ErrNoTrainer is returned by trainer controls when no smart trainer
	// channel can carry them.
	ErrNoTrainer = errors.New("dispatch: no smart trainer channel")
)
