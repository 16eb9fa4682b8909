package link

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pion/logging"
	"go.bug.st/serial"
)

// Serial defaults for ANT USB sticks.
const (
	DefaultBaudRate    = 57600
	DefaultReadTimeout = 100 * time.Millisecond
)

// SerialConfig configures a serial link.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyUSB0 or COM3.
	Port string

	// BaudRate of the stick.
	// Default: DefaultBaudRate
	BaudRate int

	// Channels is the stick's channel count.
	// Default: DefaultChannels
	Channels int

	// ReadTimeout bounds each blocking read so the loop can notice Close.
	// Default: DefaultReadTimeout
	ReadTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *SerialConfig) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// OpenSerial opens an ANT stick on a serial port at 8N1.
// A missing port yields an error wrapping ErrNotFound.
func OpenSerial(config SerialConfig) (*StreamLink, error) {
	config.applyDefaults()

	port, err := serial.Open(config.Port, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		if isPortMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, config.Port)
		}
		return nil, fmt.Errorf("link: open %s: %w", config.Port, err)
	}
	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("link: set read timeout on %s: %w", config.Port, err)
	}
	// Drop whatever the stick sent before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("link: reset input on %s: %w", config.Port, err)
	}

	return NewStreamLink(port, StreamConfig{
		Name:          config.Port,
		Channels:      config.Channels,
		LoggerFactory: config.LoggerFactory,
	}), nil
}

func isPortMissing(err error) bool {
	// On unix a missing device node surfaces as a bare ENOENT.
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.InvalidSerialPort:
			return true
		}
	}
	return false
}

// SerialFinder tries a list of serial ports in order and opens the first
// one that exists.
type SerialFinder struct {
	// Ports to try.
	Ports []string

	// Template supplies baud rate, channel count, timeout and logger for
	// every port; its Port field is ignored.
	Template SerialConfig
}

// Find opens the first available port.
func (f *SerialFinder) Find() (Link, error) {
	var errs []error
	for _, p := range f.Ports {
		config := f.Template
		config.Port = p
		l, err := OpenSerial(config)
		if err == nil {
			return l, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no serial ports configured", ErrNotFound)
	}

	// Busy or unreadable ports are real errors, not an absent stick.
	err := errors.Join(errs...)
	for _, e := range errs {
		if !errors.Is(e, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w (%v)", ErrNotFound, err)
}

// Verify SerialFinder implements Finder.
var _ Finder = (*SerialFinder)(nil)
