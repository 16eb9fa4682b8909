// Package channel implements the per-channel state machine of an ANT radio.
//
// A Handler owns one radio channel. In the slave role it searches for a
// sensor, tracks it once paired and decodes its broadcast pages into sensor
// values. In the master role it transmits pages encoded from values handed to
// it by the application. Both roles share the setup sequence, the close
// handshake and the Host callback surface; the sensor type selects the page
// decoder and encoder.
//
// Handlers are not safe for concurrent use. The Host serializes every call,
// including timer callbacks it schedules on the handler's behalf.
package channel

// Role is the direction of a channel.
type Role int

const (
	// RoleSlave searches for and receives from a sensor.
	RoleSlave Role = iota

	// RoleMaster transmits as a virtual sensor or controller.
	RoleMaster
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleSlave:
		return "Slave"
	case RoleMaster:
		return "Master"
	default:
		return "Unknown"
	}
}

// State is the lifecycle state of a channel handler.
type State int

const (
	// StateUnassigned is the state before Initialize.
	StateUnassigned State = iota

	// StateSearching means a slave channel is open and looking for a sensor.
	StateSearching

	// StateTracking means a slave channel receives a paired sensor.
	StateTracking

	// StateSearchTimeout means the search gave up; close follows.
	StateSearchTimeout

	// StateOpen means a master channel is transmitting.
	StateOpen

	// StateClosing means CLOSE_CHANNEL was sent and the radio has not
	// confirmed yet.
	StateClosing

	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "Unassigned"
	case StateSearching:
		return "Searching"
	case StateTracking:
		return "Tracking"
	case StateSearchTimeout:
		return "SearchTimeout"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsActive returns true while the channel is assigned on the radio and not
// being torn down.
func (s State) IsActive() bool {
	switch s {
	case StateSearching, StateTracking, StateOpen:
		return true
	default:
		return false
	}
}
