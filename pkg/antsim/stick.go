// Package antsim simulates an ANT USB stick.
//
// A Stick speaks the serial wire protocol on the radio end of an in-memory
// link.Pipe. It acknowledges the initialization handshake and channel setup,
// closes channels, answers channel ID requests and can inject sensor pages,
// so the rest of the stack runs end to end without hardware.
package antsim

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/backkem/antplus/pkg/gatherer"
	"github.com/backkem/antplus/pkg/link"
	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// commandLengths is the data length of each host command the stick
// understands.
var commandLengths = map[message.ID]int{
	message.IDSetNetworkKey:      1 + message.NetworkKeySize,
	message.IDRequestMessage:     2,
	message.IDAssignChannel:      3,
	message.IDSetChannelID:       5,
	message.IDChannelPeriod:      3,
	message.IDChannelRFFrequency: 2,
	message.IDSearchTimeout:      2,
	message.IDOpenChannel:        1,
	message.IDCloseChannel:       1,
	message.IDUnassignChannel:    1,
}

// startupReasonCommand is the STARTUP_MESSAGE reason for a commanded reset.
const startupReasonCommand = 0x20

// maxNetworks is the network count reported in CAPABILITIES.
const maxNetworks = 8

var (
	// ErrNotPresent is returned by the Finder while the stick is unplugged.
	ErrNotPresent = fmt.Errorf("%w: simulated stick unplugged", link.ErrNotFound)

	// ErrInUse is returned by the Finder once the host link was handed out.
	ErrInUse = fmt.Errorf("%w: simulated stick already in use", link.ErrNotFound)

	// ErrNoChannel is returned by Broadcast for an unassigned channel.
	ErrNoChannel = errors.New("antsim: channel not assigned")
)

// Config configures a Stick.
type Config struct {
	// Channels is the channel count the stick reports.
	// Default: link.DefaultChannels
	Channels int

	// Devices maps sensor types to the device number the simulated sensor
	// of that type pairs with.
	// Default: DefaultDeviceNumber(t)
	Devices map[sensor.Type]uint16

	// IgnoreNetworkKey suppresses the network key acknowledgment.
	IgnoreNetworkKey bool

	// Unplugged starts the stick invisible to its Finder.
	Unplugged bool

	// Workout drives the synthetic sensor pages.
	// Default: DefaultWorkout()
	Workout *Workout

	// Clock drives RunSensors.
	// Default: clock.New()
	Clock clock.Clock

	// Pipe configures the in-memory line.
	// Default: link.DefaultPipeConfig()
	Pipe *link.PipeConfig

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Channels <= 0 {
		c.Channels = link.DefaultChannels
	}
	if c.Workout == nil {
		w := DefaultWorkout()
		c.Workout = &w
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Pipe == nil {
		p := link.DefaultPipeConfig()
		c.Pipe = &p
	}
}

// DefaultDeviceNumber is the device number a simulated sensor of type t
// uses when Config.Devices has no entry.
func DefaultDeviceNumber(t sensor.Type) uint16 {
	return 0x1000 | uint16(t.Profile().DeviceType)
}

// ChannelInfo describes a channel as configured by the host.
type ChannelInfo struct {
	Number           uint8
	Type             message.ChannelType
	Network          uint8
	DeviceNumber     uint16
	DeviceType       uint8
	TransmissionType uint8
	Period           uint16
	RFFrequency      uint8
	SearchTimeout    uint8
	Open             bool
}

// IsMaster reports whether the host assigned the channel as a transmitter.
func (c ChannelInfo) IsMaster() bool {
	return c.Type == message.ChannelTypeBidirectionalMaster
}

// Stick is a simulated ANT USB stick.
type Stick struct {
	config Config
	log    logging.LeveledLogger

	pipe     *link.Pipe
	host     *link.StreamLink
	radio    *link.StreamLink
	gatherer *gatherer.Gatherer

	mu        sync.Mutex
	present   bool
	handedOut bool
	closed    bool
	networkOK bool
	sent      []*message.Message
	channels  map[uint8]*ChannelInfo
	sensors   map[uint8]*pageSource
}

// New creates a stick and starts its radio end.
func New(config Config) (*Stick, error) {
	config.applyDefaults()

	s := &Stick{
		config:   config,
		pipe:     link.NewPipeWithConfig(*config.Pipe),
		gatherer: gatherer.New(gatherer.Config{LoggerFactory: config.LoggerFactory}),
		present:  !config.Unplugged,
		channels: make(map[uint8]*ChannelInfo),
		sensors:  make(map[uint8]*pageSource),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("ant-sim")
	}

	s.host = s.pipe.Link(0, link.StreamConfig{
		Name:          "antsim",
		Channels:      config.Channels,
		LoggerFactory: config.LoggerFactory,
	})
	s.radio = s.pipe.Link(1, link.StreamConfig{
		Name:          "antsim-radio",
		Channels:      config.Channels,
		LoggerFactory: config.LoggerFactory,
	})
	if err := s.radio.Start(s.receive); err != nil {
		s.pipe.Close()
		return nil, err
	}
	return s, nil
}

// Pipe returns the line between host and stick, for injecting line
// conditions.
func (s *Stick) Pipe() *link.Pipe {
	return s.pipe
}

// Finder returns a Finder that hands out the host end of the stick once.
func (s *Stick) Finder() link.Finder {
	return link.FinderFunc(func() (link.Link, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || !s.present {
			return nil, ErrNotPresent
		}
		if s.handedOut {
			return nil, ErrInUse
		}
		s.handedOut = true
		return s.host, nil
	})
}

// SetPresent plugs or unplugs the stick as far as its Finder is concerned.
func (s *Stick) SetPresent(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = present
}

// Sent returns every message the host sent, in order.
func (s *Stick) Sent() []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// SentIDs returns the IDs of every message the host sent.
func (s *Stick) SentIDs() []message.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]message.ID, len(s.sent))
	for i, m := range s.sent {
		ids[i] = m.ID()
	}
	return ids
}

// Channels returns the assigned channels ordered by number.
func (s *Stick) Channels() []ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelInfo, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b ChannelInfo) int { return int(a.Number) - int(b.Number) })
	return out
}

// NetworkKeyAccepted reports whether the host loaded a network key.
func (s *Stick) NetworkKeyAccepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkOK
}

// Broadcast injects a broadcast page on an assigned channel, as if a sensor
// had sent it.
func (s *Stick) Broadcast(ch uint8, page [message.PageSize]byte) error {
	s.mu.Lock()
	_, ok := s.channels[ch]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoChannel, ch)
	}
	return s.reply(message.BroadcastData(ch, page))
}

// Inject writes an arbitrary message to the host.
func (s *Stick) Inject(msg *message.Message) error {
	return s.reply(msg)
}

// InjectRaw writes raw bytes to the host.
func (s *Stick) InjectRaw(b []byte) error {
	_, err := s.radio.Write(b)
	return err
}

// Close shuts the stick down. The host end is closed too unless a Finder
// handed it out.
func (s *Stick) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handedOut := s.handedOut
	s.mu.Unlock()

	err := s.radio.Close()
	if !handedOut {
		err = errors.Join(err, s.host.Close())
	}
	return errors.Join(err, s.pipe.Close())
}

func (s *Stick) receive(chunk []byte) {
	for msg := range s.gatherer.Submit(chunk) {
		s.handle(msg)
	}
}

func (s *Stick) handle(msg *message.Message) {
	if s.log != nil {
		s.log.Debugf("rx %s", msg)
	}

	data := msg.Data()
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	replies := s.respond(msg.ID(), data)
	s.mu.Unlock()

	for _, r := range replies {
		if err := s.reply(r); err != nil && s.log != nil {
			s.log.Warnf("reply %s: %v", r, err)
		}
	}
}

// respond updates the simulated radio and returns its replies. Called with
// s.mu held.
func (s *Stick) respond(id message.ID, data []byte) []*message.Message {
	if n, ok := commandLengths[id]; ok && len(data) < n {
		if len(data) > 0 && id.IsChannelScoped() {
			return []*message.Message{message.ChannelResponse(data[0], id, message.CodeInvalidMessage)}
		}
		return nil
	}

	switch id {
	case message.IDSystemReset:
		s.networkOK = false
		clear(s.channels)
		clear(s.sensors)
		return []*message.Message{message.StartupMessage(startupReasonCommand)}

	case message.IDSetNetworkKey:
		s.networkOK = true
		if s.config.IgnoreNetworkKey {
			return nil
		}
		return []*message.Message{message.ChannelResponse(data[0], id, message.CodeResponseNoError)}

	case message.IDRequestMessage:
		return s.respondRequest(data[0], message.ID(data[1]))
	}

	if !id.IsChannelScoped() || len(data) == 0 {
		return nil
	}
	ch := data[0]
	if int(ch) >= s.config.Channels {
		return []*message.Message{message.ChannelResponse(ch, id, message.CodeInvalidMessage)}
	}

	if id == message.IDAssignChannel {
		if _, ok := s.channels[ch]; ok {
			return []*message.Message{message.ChannelResponse(ch, id, message.CodeChannelInWrongState)}
		}
		s.channels[ch] = &ChannelInfo{
			Number:  ch,
			Type:    message.ChannelType(data[1]),
			Network: data[2],
		}
		return []*message.Message{message.ChannelResponse(ch, id, message.CodeResponseNoError)}
	}

	c, ok := s.channels[ch]
	if !ok {
		return []*message.Message{message.ChannelResponse(ch, id, message.CodeChannelInWrongState)}
	}

	switch id {
	case message.IDSetChannelID:
		c.DeviceNumber = uint16(data[1]) | uint16(data[2])<<8
		c.DeviceType = data[3]
		c.TransmissionType = data[4]
	case message.IDChannelPeriod:
		c.Period = uint16(data[1]) | uint16(data[2])<<8
	case message.IDChannelRFFrequency:
		c.RFFrequency = data[1]
	case message.IDSearchTimeout:
		c.SearchTimeout = data[1]
	case message.IDOpenChannel:
		if c.Open {
			return []*message.Message{message.ChannelResponse(ch, id, message.CodeChannelInWrongState)}
		}
		c.Open = true
		s.attachSensor(c)
	case message.IDCloseChannel:
		if !c.Open {
			return []*message.Message{message.ChannelResponse(ch, id, message.CodeChannelNotOpened)}
		}
		c.Open = false
		delete(s.sensors, ch)
		return []*message.Message{
			message.ChannelResponse(ch, id, message.CodeResponseNoError),
			message.ChannelRFEvent(ch, message.CodeEventChannelClosed),
		}
	case message.IDUnassignChannel:
		if c.Open {
			return []*message.Message{message.ChannelResponse(ch, id, message.CodeChannelInWrongState)}
		}
		delete(s.channels, ch)
	case message.IDAcknowledgedData:
		return []*message.Message{message.ChannelRFEvent(ch, message.CodeEventTransferTxCompleted)}
	case message.IDBroadcastData:
		// Masters transmit on their next slot; nothing to acknowledge.
		return nil
	}
	return []*message.Message{message.ChannelResponse(ch, id, message.CodeResponseNoError)}
}

func (s *Stick) respondRequest(ch uint8, requested message.ID) []*message.Message {
	switch requested {
	case message.IDCapabilities:
		return []*message.Message{message.Capabilities(uint8(s.config.Channels), maxNetworks)}

	case message.IDSetChannelID:
		c, ok := s.channels[ch]
		if !ok || !c.Open {
			return []*message.Message{message.ChannelResponse(ch, message.IDRequestMessage, message.CodeChannelIDNotSet)}
		}
		dev, devType := c.DeviceNumber, c.DeviceType
		if dev == 0 {
			dev = s.deviceNumber(devType)
		}
		return []*message.Message{message.New(message.IDSetChannelID,
			ch, byte(dev), byte(dev>>8), devType, c.TransmissionType|0x01)}
	}
	return []*message.Message{message.ChannelResponse(ch, message.IDRequestMessage, message.CodeInvalidMessage)}
}

func (s *Stick) deviceNumber(deviceType uint8) uint16 {
	t, ok := sensor.TypeForDeviceType(deviceType)
	if !ok {
		return uint16(deviceType)
	}
	if dev, ok := s.config.Devices[t]; ok {
		return dev
	}
	return DefaultDeviceNumber(t)
}

func (s *Stick) reply(msg *message.Message) error {
	if s.log != nil {
		s.log.Debugf("tx %s", msg)
	}
	_, err := s.radio.Write(msg.Encode())
	return err
}
