package dispatch

import (
	"time"

	"github.com/backkem/antplus/pkg/channel"
	"github.com/backkem/antplus/pkg/link"
	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"github.com/pion/logging"
)

// Handshake and retry timing defaults.
const (
	// DefaultInitializationTimeout bounds the network key handshake.
	DefaultInitializationTimeout = 1000 * time.Millisecond

	// DefaultResetSettleTime is the wait after SYSTEM_RESET before the radio
	// accepts commands. The radio needs at least 500 ms.
	DefaultResetSettleTime = 600 * time.Millisecond

	// DefaultRetryInterval is the wait between link scans.
	DefaultRetryInterval = 1 * time.Second
)

// Config configures a Dispatcher.
type Config struct {
	// Finder locates the radio. Required.
	Finder link.Finder

	// NetworkNumber is the network slot the key is loaded into.
	// Default: sensor.NetworkNumber
	NetworkNumber uint8

	// NetworkKey is loaded during initialization.
	// Default: sensor.NetworkKey
	NetworkKey [message.NetworkKeySize]byte

	// InitializationTimeout bounds the handshake, measured from the reset.
	// Default: DefaultInitializationTimeout
	InitializationTimeout time.Duration

	// ResetSettleTime is the wait between SYSTEM_RESET and SET_NETWORK_KEY.
	// Default: DefaultResetSettleTime
	ResetSettleTime time.Duration

	// RetryInterval is the fixed wait between link scans.
	// Default: DefaultRetryInterval
	RetryInterval time.Duration

	// RetryBackOff paces link scans. backoff.Stop ends the retries and
	// reports a failed initialization.
	// Default: backoff.NewConstantBackOff(RetryInterval)
	RetryBackOff backoff.BackOff

	// SearchTimeout bounds each sensor search.
	// Default: channel.DefaultSearchTimeout
	SearchTimeout time.Duration

	// WheelCircumference in meters, for speed sensors.
	// Default: sensor.DefaultWheelCircumference
	WheelCircumference float64

	// MasterDeviceNumber is the identity master channels transmit with.
	// Default: channel.DefaultMasterDeviceNumber
	MasterDeviceNumber uint16

	// MasterTransmissionType is the transmission type of master channels.
	// Default: channel.DefaultMasterTransmissionType
	MasterTransmissionType uint8

	// Clock schedules every timer.
	// Default: clock.New()
	Clock clock.Clock

	// Callbacks is subscribed at construction.
	Callbacks Callbacks

	// LoggerFactory is the factory for creating loggers.
	// Default: logging.NewDefaultLoggerFactory()
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.NetworkNumber == 0 {
		c.NetworkNumber = sensor.NetworkNumber
	}
	if c.NetworkKey == [message.NetworkKeySize]byte{} {
		c.NetworkKey = sensor.NetworkKey
	}
	if c.InitializationTimeout == 0 {
		c.InitializationTimeout = DefaultInitializationTimeout
	}
	if c.ResetSettleTime == 0 {
		c.ResetSettleTime = DefaultResetSettleTime
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.RetryBackOff == nil {
		c.RetryBackOff = backoff.NewConstantBackOff(c.RetryInterval)
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = channel.DefaultSearchTimeout
	}
	if c.WheelCircumference == 0 {
		c.WheelCircumference = sensor.DefaultWheelCircumference
	}
	if c.MasterDeviceNumber == 0 {
		c.MasterDeviceNumber = channel.DefaultMasterDeviceNumber
	}
	if c.MasterTransmissionType == 0 {
		c.MasterTransmissionType = channel.DefaultMasterTransmissionType
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Finder == nil {
		return ErrNoFinder
	}
	if c.InitializationTimeout <= c.ResetSettleTime {
		return ErrInvalidTimeouts
	}
	return nil
}
