package channel

import (
	"fmt"
	"time"

	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
	"github.com/pion/logging"
)

// Defaults applied by Config.
const (
	// DefaultSearchTimeout is how long a slave searches before giving up.
	DefaultSearchTimeout = 30 * time.Second

	// DefaultMasterDeviceNumber is the device number masters transmit with.
	DefaultMasterDeviceNumber uint16 = 0x2A5C

	// DefaultMasterTransmissionType is the transmission type masters use.
	DefaultMasterTransmissionType uint8 = 0x05
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Host is the environment a Handler runs in. The dispatcher implements it.
//
// All calls into a Handler happen with the host's state serialized, and the
// host must deliver AfterFunc callbacks the same way.
type Host interface {
	// Send writes a message to the radio.
	Send(msg *message.Message)

	// AfterFunc schedules f after d.
	AfterFunc(d time.Duration, f func()) Timer

	// SensorFound reports that a slave paired with a device.
	SensorFound(h *Handler, deviceNumber uint16)

	// SearchTimeout reports that a slave gave up searching.
	SearchTimeout(h *Handler)

	// SensorValue reports a decoded value.
	SensorValue(h *Handler, kind sensor.ValueKind, value float64)

	// Finished reports that the channel is closed and unassigned. It is
	// called exactly once per handler.
	Finished(h *Handler)
}

// Config configures a Handler.
type Config struct {
	// Number is the radio channel number.
	Number uint8

	// Role selects slave (search) or master (transmit).
	Role Role

	// SensorType selects the device profile and page codecs.
	SensorType sensor.Type

	// DeviceNumber pins a slave to one device (0 accepts any), or is the
	// identity a master transmits with.
	// Default for masters: DefaultMasterDeviceNumber
	DeviceNumber uint16

	// TransmissionType is 0 (any) for slaves.
	// Default for masters: DefaultMasterTransmissionType
	TransmissionType uint8

	// Network is the network number holding the ANT+ key.
	// Default: sensor.NetworkNumber
	Network uint8

	// SearchTimeout bounds a slave search.
	// Default: DefaultSearchTimeout
	SearchTimeout time.Duration

	// WheelCircumference in meters, for speed sensors.
	// Default: sensor.DefaultWheelCircumference
	WheelCircumference float64

	// Host receives the handler's events and sends its messages. Required.
	Host Host

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Role == RoleMaster {
		if c.DeviceNumber == 0 {
			c.DeviceNumber = DefaultMasterDeviceNumber
		}
		if c.TransmissionType == 0 {
			c.TransmissionType = DefaultMasterTransmissionType
		}
	}
	if c.Network == 0 {
		c.Network = sensor.NetworkNumber
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.WheelCircumference == 0 {
		c.WheelCircumference = sensor.DefaultWheelCircumference
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Host == nil {
		return ErrNoHost
	}
	if !c.SensorType.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedSensor, c.SensorType)
	}
	if c.Role == RoleMaster && !c.SensorType.Profile().MasterCapable {
		return fmt.Errorf("%w: %s as master", ErrUnsupportedSensor, c.SensorType)
	}
	return nil
}

// Info is a snapshot of a handler.
type Info struct {
	Number       uint8
	Role         Role
	SensorType   sensor.Type
	DeviceNumber uint16
	State        State
}

// Handler runs the state machine of one channel.
type Handler struct {
	config Config
	host   Host
	log    logging.LeveledLogger

	state        State
	deviceNumber uint16
	found        bool
	finished     bool

	// setup is the command chain sent after Initialize; step indexes the
	// command awaiting its response.
	setup []*message.Message
	step  int

	timer    Timer
	timerGen uint64

	decoder decoder
	encoder encoder
}

// New creates a handler in the Unassigned state.
func New(config Config) (*Handler, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		config:       config,
		host:         config.Host,
		state:        StateUnassigned,
		deviceNumber: config.DeviceNumber,
		encoder:      newEncoder(config.SensorType, config.Role),
	}
	if config.Role == RoleSlave {
		h.decoder = newDecoder(config.SensorType, config.WheelCircumference)
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("ant-channel")
	}
	return h, nil
}

// Number returns the radio channel number.
func (h *Handler) Number() uint8 { return h.config.Number }

// Role returns the channel role.
func (h *Handler) Role() Role { return h.config.Role }

// SensorType returns the sensor type.
func (h *Handler) SensorType() sensor.Type { return h.config.SensorType }

// DeviceNumber returns the bound device number, 0 if a slave has not paired
// and was not pinned.
func (h *Handler) DeviceNumber() uint16 { return h.deviceNumber }

// State returns the current state.
func (h *Handler) State() State { return h.state }

// Info returns a snapshot of the handler.
func (h *Handler) Info() Info {
	return Info{
		Number:       h.config.Number,
		Role:         h.config.Role,
		SensorType:   h.config.SensorType,
		DeviceNumber: h.deviceNumber,
		State:        h.state,
	}
}

func (h *Handler) String() string {
	return fmt.Sprintf("ch%d/%s/%s", h.config.Number, h.config.Role, h.config.SensorType)
}

// Initialize assigns the channel on the radio and starts the setup chain.
// A slave enters Searching and arms the search timeout; a master enters Open.
func (h *Handler) Initialize() error {
	if h.state != StateUnassigned {
		return ErrAlreadyInitialized
	}

	profile := h.config.SensorType.Profile()
	ch := h.config.Number

	chType := message.ChannelTypeBidirectionalSlave
	if h.config.Role == RoleMaster {
		chType = message.ChannelTypeBidirectionalMaster
	}

	h.setup = []*message.Message{
		message.AssignChannel(ch, chType, h.config.Network),
		message.SetChannelID(ch, h.config.DeviceNumber, profile.DeviceType, h.config.TransmissionType),
		message.SetChannelPeriod(ch, profile.Period),
		message.SetRFFrequency(ch, sensor.RFFrequency),
	}
	if h.config.Role == RoleSlave {
		// The software timer governs the search, so the radio never gives up.
		h.setup = append(h.setup, message.SetSearchTimeout(ch, message.SearchTimeoutInfinite))
	}
	h.setup = append(h.setup, message.OpenChannel(ch))
	h.step = 0

	if h.config.Role == RoleSlave {
		h.state = StateSearching
		h.startSearchTimer()
	} else {
		h.state = StateOpen
	}

	if h.log != nil {
		h.log.Infof("%s: initializing (device %d)", h, h.config.DeviceNumber)
	}
	h.host.Send(h.setup[0])
	return nil
}

// Close starts the close handshake. Closing an unassigned handler finishes
// it at once; closing a handler that is already closing or closed does
// nothing.
func (h *Handler) Close() {
	switch h.state {
	case StateClosing, StateClosed:
		return
	case StateUnassigned:
		h.finish()
		return
	}

	h.stopSearchTimer()
	h.state = StateClosing
	if h.log != nil {
		h.log.Debugf("%s: closing", h)
	}
	h.host.Send(message.CloseChannel(h.config.Number))
}

// Abandon drops the handler without talking to the radio, for when a reset
// already cleared the channel. Finished is not reported.
func (h *Handler) Abandon() {
	h.stopSearchTimer()
	h.state = StateClosed
	h.finished = true
}

// HandleMessage feeds a message addressed to this channel into the state
// machine. It returns false if the message kind means nothing to a channel.
func (h *Handler) HandleMessage(msg *message.Message) bool {
	switch msg.ID() {
	case message.IDChannelEvent:
		ev := message.AsChannelEvent(msg)
		if ev.IsRFEvent() {
			h.handleRFEvent(ev.Code())
		} else {
			h.handleResponse(ev.MessageID(), ev.Code())
		}
		return true

	case message.IDBroadcastData, message.IDAcknowledgedData, message.IDBurstData:
		h.handleBroadcast(message.AsBroadcast(msg))
		return true

	case message.IDSetChannelID:
		h.handleChannelID(message.AsChannelID(msg))
		return true
	}
	return false
}

// SendValue encodes value into a page and transmits it. Masters broadcast;
// a slave tracking a smart trainer sends the page acknowledged.
func (h *Handler) SendValue(kind sensor.ValueKind, value float64) error {
	if h.encoder == nil {
		return fmt.Errorf("%w: %s on %s %s", ErrUnsupportedValue, kind, h.config.Role, h.config.SensorType)
	}
	if h.state != StateOpen && h.state != StateTracking {
		return fmt.Errorf("%w: %s is %s", ErrNotOpen, h, h.state)
	}

	page, err := h.encoder.encode(kind, value)
	if err != nil {
		return err
	}

	if h.config.Role == RoleMaster {
		h.host.Send(message.BroadcastData(h.config.Number, page))
	} else {
		h.host.Send(message.AcknowledgedData(h.config.Number, page))
	}
	return nil
}

func (h *Handler) handleResponse(id message.ID, code message.Code) {
	switch id {
	case message.IDCloseChannel:
		switch code {
		case message.CodeResponseNoError:
			// EVENT_CHANNEL_CLOSED follows.
		case message.CodeChannelInWrongState, message.CodeChannelNotOpened:
			// Never opened; there is nothing to wait for.
			if h.state == StateClosing {
				h.finish()
			}
		default:
			h.warnf("%s: close rejected: %s", h, code)
		}
		return

	case message.IDUnassignChannel, message.IDRequestMessage,
		message.IDAcknowledgedData, message.IDBroadcastData:
		if code != message.CodeResponseNoError {
			h.warnf("%s: %s rejected: %s", h, id, code)
		}
		return
	}

	if h.step < len(h.setup) && h.setup[h.step].ID() == id {
		if code != message.CodeResponseNoError {
			h.warnf("%s: setup step %s rejected: %s", h, id, code)
			return
		}
		h.advanceSetup()
		return
	}

	h.warnf("%s: unexpected response to %s: %s", h, id, code)
}

func (h *Handler) advanceSetup() {
	h.step++
	if !h.state.IsActive() {
		return
	}
	if h.step < len(h.setup) {
		h.host.Send(h.setup[h.step])
		return
	}
	if h.log != nil {
		h.log.Infof("%s: open", h)
	}
}

func (h *Handler) handleRFEvent(code message.Code) {
	switch code {
	case message.CodeEventChannelClosed:
		switch h.state {
		case StateSearching:
			h.searchTimedOut(true)
		case StateClosed:
		default:
			h.finish()
		}

	case message.CodeEventRxSearchTimeout:
		if h.state == StateSearching {
			h.searchTimedOut(false)
		}

	case message.CodeEventRxFailGoToSearch:
		if h.log != nil {
			h.log.Infof("%s: lost device %d, radio searching again", h, h.deviceNumber)
		}

	case message.CodeEventTransferTxFailed:
		h.warnf("%s: acknowledged transfer failed", h)

	case message.CodeEventTx, message.CodeEventRxFail, message.CodeEventTransferTxCompleted:
		if h.log != nil {
			h.log.Tracef("%s: %s", h, code)
		}

	default:
		if h.log != nil {
			h.log.Debugf("%s: unhandled event %s in %s", h, code, h.state)
		}
	}
}

func (h *Handler) handleBroadcast(b message.Broadcast) {
	if h.config.Role == RoleMaster {
		if h.log != nil {
			h.log.Debugf("%s: ignoring received page 0x%02X", h, b.Page())
		}
		return
	}

	switch h.state {
	case StateSearching:
		h.stopSearchTimer()
		h.state = StateTracking
		if h.decoder != nil {
			// Prime counters; the first page yields no value.
			h.decoder.decode(b.Data())
		}
		h.host.Send(message.RequestMessage(h.config.Number, message.IDSetChannelID))

	case StateTracking:
		if h.decoder == nil {
			return
		}
		for _, v := range h.decoder.decode(b.Data()) {
			h.host.SensorValue(h, v.Kind, v.Value)
		}
	}
}

func (h *Handler) handleChannelID(id message.ChannelID) {
	if h.config.Role != RoleSlave || h.state != StateTracking || h.found {
		return
	}
	if want := h.config.SensorType.Profile().DeviceType; id.DeviceType() != want {
		h.warnf("%s: paired device type %d, expected %d", h, id.DeviceType(), want)
	}
	h.found = true
	h.deviceNumber = id.DeviceNumber()
	if h.log != nil {
		h.log.Infof("%s: found device %d", h, h.deviceNumber)
	}
	h.host.SensorFound(h, h.deviceNumber)
}

// searchTimedOut ends a search. closed is true when the radio already
// closed the channel.
func (h *Handler) searchTimedOut(closed bool) {
	if h.state != StateSearching {
		return
	}
	h.stopSearchTimer()
	h.state = StateSearchTimeout
	if h.log != nil {
		h.log.Infof("%s: search timed out", h)
	}
	h.host.SearchTimeout(h)

	if closed {
		h.finish()
		return
	}
	h.Close()
}

func (h *Handler) finish() {
	if h.finished {
		return
	}
	h.stopSearchTimer()
	assigned := h.state != StateUnassigned
	h.state = StateClosed
	h.finished = true
	if assigned {
		h.host.Send(message.UnassignChannel(h.config.Number))
	}
	if h.log != nil {
		h.log.Infof("%s: closed", h)
	}
	h.host.Finished(h)
}

func (h *Handler) startSearchTimer() {
	h.timerGen++
	gen := h.timerGen
	h.timer = h.host.AfterFunc(h.config.SearchTimeout, func() {
		// A timer that was stopped too late to prevent the callback is
		// stale; the generation tells.
		if gen != h.timerGen {
			return
		}
		h.timer = nil
		h.searchTimedOut(false)
	})
}

func (h *Handler) stopSearchTimer() {
	h.timerGen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *Handler) warnf(format string, args ...any) {
	if h.log != nil {
		h.log.Warnf(format, args...)
	}
}
