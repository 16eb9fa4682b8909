// Package link provides the byte-oriented duplex connection to an ANT radio.
//
// A Link delivers received bytes to a handler from its own read goroutine and
// accepts writes from any goroutine. Implementations:
//   - StreamLink: any io.ReadWriteCloser, such as a serial port
//   - Serial: a USB ANT stick behind a serial device (go.bug.st/serial)
//   - Pipe: an in-memory pair for simulators and tests (pion test.Bridge)
//
// A Finder locates and opens a link; the dispatcher retries it until a radio
// shows up.
package link

import "errors"

// DefaultChannels is the channel count assumed when a link does not know
// better. USB2 and USB-m sticks have eight channels.
const DefaultChannels = 8

// Link errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed link.
	ErrClosed = errors.New("link: closed")

	// ErrNotFound is returned by a Finder when no radio is present.
	ErrNotFound = errors.New("link: no ANT radio found")

	// ErrNoHandler is returned when Start is called without a handler.
	ErrNoHandler = errors.New("link: no receive handler")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("link: already started")

	// ErrNotStarted is returned by Write before Start.
	ErrNotStarted = errors.New("link: not started")
)

// Handler receives every chunk of bytes read from the link. The slice is
// owned by the handler.
type Handler func(chunk []byte)

// Link is a duplex byte channel to an ANT radio.
type Link interface {
	// Start begins delivering received bytes to h.
	Start(h Handler) error

	// IsReady reports whether the link is started and not closed.
	IsReady() bool

	// Write sends raw bytes to the radio.
	Write(p []byte) (int, error)

	// NumChannels is the number of radio channels behind the link.
	NumChannels() int

	// Close stops the read loop and releases the device.
	Close() error

	// String names the link for logs.
	String() string
}

// Finder locates and opens a link.
type Finder interface {
	// Find returns an opened, unstarted link, or an error wrapping
	// ErrNotFound if there is no radio.
	Find() (Link, error)
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func() (Link, error)

// Find calls f.
func (f FinderFunc) Find() (Link, error) {
	return f()
}
