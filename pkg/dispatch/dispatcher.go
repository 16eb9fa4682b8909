// Package dispatch is the central dispatcher of an ANT radio.
//
// A Dispatcher finds and opens the radio link, runs the network key
// handshake, owns the fixed pool of channel slots and routes every received
// message to the channel it names. Commands (search, open master, send
// value, close all) and events (Callbacks) form its public surface.
//
// All state is guarded by one mutex. Link reads, timer callbacks and commands
// each run to completion under it, so channel handlers never see concurrent
// input. Events are queued under the lock and delivered after it is released.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/backkem/antplus/pkg/channel"
	"github.com/backkem/antplus/pkg/gatherer"
	"github.com/backkem/antplus/pkg/link"
	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// Stats counts dispatcher traffic.
type Stats struct {
	// Received is the number of messages decoded from the link.
	Received uint64

	// Sent is the number of messages written to the link.
	Sent uint64

	// Unroutable is the number of received messages no handler took.
	Unroutable uint64

	// Gatherer holds the framing counters of the current link.
	Gatherer gatherer.Stats
}

// Dispatcher owns an ANT radio and its channels.
type Dispatcher struct {
	config Config
	clock  clock.Clock
	log    logging.LeveledLogger
	host   *host

	mu          sync.Mutex
	link        link.Link
	gatherer    *gatherer.Gatherer
	slots       []*channel.Handler
	session     *handshake
	initialized bool
	closed      bool
	retryGen    uint64
	retryTimer  *clock.Timer
	stats       Stats

	subs      []subscriber
	nextSubID uint64
	pending   []event
	draining  bool
}

// New creates a Dispatcher. It does not touch the radio until Initialize.
func New(config Config) (*Dispatcher, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		config: config,
		clock:  config.Clock,
		log:    config.LoggerFactory.NewLogger("ant-dispatch"),
		gatherer: gatherer.New(gatherer.Config{
			LoggerFactory: config.LoggerFactory,
		}),
	}
	d.host = &host{d: d}
	d.Subscribe(config.Callbacks)
	return d, nil
}

// Initialize finds the radio and runs the network key handshake. The
// outcome arrives as OnInitializationFinished. While no radio is found the
// scan is retried per Config.RetryBackOff; every failed scan reports
// OnLinkScanFinished(false) and OnInitializationFinished(false).
//
// Calling Initialize again reuses an open link, cancels pending timers and
// drops every channel, since the radio reset clears them.
//
// The Finder runs without the dispatcher lock held, so a slow port open does
// not stall other commands or Close.
func (d *Dispatcher) Initialize() {
	d.mu.Lock()
	gen, needScan := d.initialize()
	d.mu.Unlock()
	if needScan {
		d.scan(gen)
	}
	d.drain()
}

// initialize resets dispatcher state for a new run. It reports whether a
// link scan is needed and the retry generation the scan belongs to.
func (d *Dispatcher) initialize() (uint64, bool) {
	if d.closed {
		d.emitInitializationFinished(false)
		return 0, false
	}

	d.stopRetry()
	d.cancelHandshake()
	d.abandonChannels()
	d.initialized = false

	if d.link != nil {
		if d.link.IsReady() {
			d.startHandshake()
			return 0, false
		}
		d.dropLink()
	}

	d.config.RetryBackOff.Reset()
	return d.retryGen, true
}

// scan tries the Finder once and schedules the next attempt on failure.
// Called without d.mu held; the caller drains.
func (d *Dispatcher) scan(gen uint64) {
	d.mu.Lock()
	stale := d.closed || gen != d.retryGen || d.link != nil
	d.mu.Unlock()
	if stale {
		return
	}

	l, err := d.config.Finder.Find()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		if d.closed || d.link != nil {
			// Closed or superseded while the Finder ran.
			go l.Close()
			return
		}
		if err = l.Start(func(chunk []byte) { d.receive(l, chunk) }); err != nil {
			l.Close()
		}
	}
	if err != nil {
		if d.closed || gen != d.retryGen {
			return
		}
		d.log.Infof("link scan: %v", err)
		d.emitLinkScanFinished(false)
		d.emitInitializationFinished(false)

		next := d.config.RetryBackOff.NextBackOff()
		if next < 0 {
			d.log.Warnf("giving up on link scan")
			return
		}
		d.retryGen++
		gen = d.retryGen
		d.retryTimer = d.clock.AfterFunc(next, func() {
			d.scan(gen)
			d.drain()
		})
		return
	}

	// A link found by an older scan is still the radio; adopt it.
	d.stopRetry()
	d.link = l
	d.gatherer.Reset()
	d.slots = make([]*channel.Handler, l.NumChannels())
	d.log.Infof("link %s open with %d channels", l, l.NumChannels())
	d.emitLinkScanFinished(true)
	d.startHandshake()
}

func (d *Dispatcher) stopRetry() {
	d.retryGen++
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
}

// dropLink forgets a failed link. The link is closed off the lock because
// Close waits for the read loop, which may be waiting for the lock.
func (d *Dispatcher) dropLink() {
	l := d.link
	d.link = nil
	d.slots = nil
	d.initialized = false
	go l.Close()
}

// abandonChannels drops every handler without the close handshake.
func (d *Dispatcher) abandonChannels() {
	dropped := false
	for i, h := range d.slots {
		if h == nil {
			continue
		}
		h.Abandon()
		d.slots[i] = nil
		d.emitChannelClosed(h.Number(), h.SensorType())
		dropped = true
	}
	if dropped {
		d.emitAllChannelsClosed()
	}
}

// SearchForSensor opens a slave channel searching for a sensor of type t.
// deviceNumber pins the search to one device; 0 accepts any. It returns
// the channel number.
func (d *Dispatcher) SearchForSensor(t sensor.Type, deviceNumber uint16) (uint8, error) {
	d.mu.Lock()
	n, err := d.searchForSensor(t, deviceNumber)
	d.mu.Unlock()
	d.drain()
	return n, err
}

// SearchForSensorType searches for any sensor of type t.
func (d *Dispatcher) SearchForSensorType(t sensor.Type) (uint8, error) {
	return d.SearchForSensor(t, 0)
}

func (d *Dispatcher) searchForSensor(t sensor.Type, deviceNumber uint16) (uint8, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	n, ok := d.freeSlot()
	if !ok {
		return 0, ErrNoFreeChannel
	}

	h, err := channel.New(channel.Config{
		Number:             n,
		Role:               channel.RoleSlave,
		SensorType:         t,
		DeviceNumber:       deviceNumber,
		Network:            d.config.NetworkNumber,
		SearchTimeout:      d.config.SearchTimeout,
		WheelCircumference: d.config.WheelCircumference,
		Host:               d.host,
		LoggerFactory:      d.config.LoggerFactory,
	})
	if err != nil {
		return 0, err
	}

	d.slots[n] = h
	d.emitSearchStarted(t, n)
	if err := h.Initialize(); err != nil {
		d.slots[n] = nil
		return 0, err
	}
	return n, nil
}

// OpenMasterChannel opens a channel transmitting as a sensor of type t. At
// most one master per sensor type may be open. It returns the channel
// number.
func (d *Dispatcher) OpenMasterChannel(t sensor.Type) (uint8, error) {
	d.mu.Lock()
	n, err := d.openMasterChannel(t)
	d.mu.Unlock()
	d.drain()
	return n, err
}

func (d *Dispatcher) openMasterChannel(t sensor.Type) (uint8, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	if d.master(t) != nil {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateMasterChannel, t)
	}
	n, ok := d.freeSlot()
	if !ok {
		return 0, ErrNoFreeChannel
	}

	h, err := channel.New(channel.Config{
		Number:           n,
		Role:             channel.RoleMaster,
		SensorType:       t,
		DeviceNumber:     d.config.MasterDeviceNumber,
		TransmissionType: d.config.MasterTransmissionType,
		Network:          d.config.NetworkNumber,
		Host:             d.host,
		LoggerFactory:    d.config.LoggerFactory,
	})
	if err != nil {
		return 0, err
	}

	d.slots[n] = h
	if err := h.Initialize(); err != nil {
		d.slots[n] = nil
		return 0, err
	}
	return n, nil
}

// SendSensorValue transmits value on the master channel of type t.
func (d *Dispatcher) SendSensorValue(kind sensor.ValueKind, t sensor.Type, value float64) error {
	d.mu.Lock()
	defer d.drain()
	defer d.mu.Unlock()

	if d.link == nil {
		return ErrLinkAbsent
	}
	h := d.master(t)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoMasterChannel, t)
	}
	return h.SendValue(kind, value)
}

// SetSlope sends a track resistance grade in percent to the smart trainer.
func (d *Dispatcher) SetSlope(percent float64) error {
	return d.controlTrainer(sensor.ValueSlope, percent)
}

// SetWeight sends the rider and bike weight in kilograms to the smart
// trainer.
func (d *Dispatcher) SetWeight(userKg, bikeKg float64) error {
	if err := d.controlTrainer(sensor.ValueUserWeight, userKg); err != nil {
		return err
	}
	return d.controlTrainer(sensor.ValueBikeWeight, bikeKg)
}

// controlTrainer routes a control value to the smart trainer master, or to
// a tracking smart trainer slave if there is no master.
func (d *Dispatcher) controlTrainer(kind sensor.ValueKind, value float64) error {
	d.mu.Lock()
	defer d.drain()
	defer d.mu.Unlock()

	if d.link == nil {
		return ErrLinkAbsent
	}
	h := d.master(sensor.TypeSmartTrainer)
	if h == nil {
		for _, s := range d.slots {
			if s != nil && s.SensorType() == sensor.TypeSmartTrainer && s.State() == channel.StateTracking {
				h = s
				break
			}
		}
	}
	if h == nil {
		return ErrNoTrainer
	}
	return h.SendValue(kind, value)
}

// CloseAllChannels closes every occupied channel. OnAllChannelsClosed follows
// once the last one finished; with no channel open it is emitted before
// CloseAllChannels returns.
func (d *Dispatcher) CloseAllChannels() {
	d.mu.Lock()
	open := make([]*channel.Handler, 0, len(d.slots))
	for _, h := range d.slots {
		if h != nil {
			open = append(open, h)
		}
	}
	if len(open) == 0 {
		d.emitAllChannelsClosed()
	}
	for _, h := range open {
		h.Close()
	}
	d.mu.Unlock()
	d.drain()
}

// IsInitialized reports whether the handshake succeeded on the current link.
func (d *Dispatcher) IsInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// LinkPresent reports whether a radio link is open.
func (d *Dispatcher) LinkPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.link != nil
}

// NumChannels returns the size of the channel pool, 0 without a link.
func (d *Dispatcher) NumChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}

// AreAllChannelsClosed reports whether every slot is free.
func (d *Dispatcher) AreAllChannelsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.slots {
		if h != nil {
			return false
		}
	}
	return true
}

// Channels returns a snapshot of the occupied slots.
func (d *Dispatcher) Channels() []channel.Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []channel.Info
	for _, h := range d.slots {
		if h != nil {
			out = append(out, h.Info())
		}
	}
	return out
}

// Stats returns traffic counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Gatherer = d.gatherer.Stats()
	return s
}

// Close stops every timer and closes the link. Channels are dropped without
// the close handshake; call CloseAllChannels first for an orderly shutdown.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.stopRetry()
	d.cancelHandshake()
	for i, h := range d.slots {
		if h != nil {
			h.Abandon()
			d.slots[i] = nil
		}
	}
	l := d.link
	d.link = nil
	d.initialized = false
	d.mu.Unlock()

	if l != nil {
		return l.Close()
	}
	return nil
}

// ready checks that channel commands can reach an initialized radio.
func (d *Dispatcher) ready() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.link == nil:
		return ErrLinkAbsent
	case !d.initialized:
		return ErrNotInitialized
	}
	return nil
}

// freeSlot returns the lowest free channel number.
func (d *Dispatcher) freeSlot() (uint8, bool) {
	for i, h := range d.slots {
		if h == nil {
			return uint8(i), true
		}
	}
	return 0, false
}

func (d *Dispatcher) master(t sensor.Type) *channel.Handler {
	for _, h := range d.slots {
		if h != nil && h.Role() == channel.RoleMaster && h.SensorType() == t {
			return h
		}
	}
	return nil
}

// receive is the link handler.
func (d *Dispatcher) receive(l link.Link, chunk []byte) {
	d.mu.Lock()
	if d.closed || d.link != l {
		d.mu.Unlock()
		return
	}
	d.log.Tracef("rx % X", chunk)
	for msg := range d.gatherer.Submit(chunk) {
		d.stats.Received++
		d.route(msg)
	}
	d.mu.Unlock()
	d.drain()
}

// route hands a message to the handshake or to its channel. Called with
// d.mu held.
func (d *Dispatcher) route(msg *message.Message) {
	d.log.Debugf("rx %s", msg)

	switch msg.ID() {
	case message.IDStartupMessage:
		if msg.Len() > 0 {
			d.log.Infof("radio started (reason 0x%02X)", msg.Data()[0])
		}
		return
	case message.IDCapabilities:
		if msg.Len() > 0 {
			d.log.Infof("radio reports %d channels", msg.Data()[0])
		}
		return
	case message.IDChannelEvent:
		ev := message.AsChannelEvent(msg)
		if !ev.IsRFEvent() && ev.MessageID() == message.IDSetNetworkKey {
			d.handleNetworkKeyResponse(ev)
			return
		}
	}

	ch, ok := msg.Channel()
	if !ok {
		d.unroutable(msg, "not channel scoped")
		return
	}
	if int(ch) >= len(d.slots) || d.slots[ch] == nil {
		// A finished handler frees its slot before the radio confirms the
		// UNASSIGN_CHANNEL it sent last.
		if msg.ID() == message.IDChannelEvent && message.AsChannelEvent(msg).IsResponseTo(message.IDUnassignChannel) {
			d.log.Debugf("channel %d unassigned: %s", ch, message.AsChannelEvent(msg).Code())
			return
		}
		d.unroutable(msg, "no handler on channel")
		return
	}
	if !d.slots[ch].HandleMessage(msg) {
		d.unroutable(msg, "not handled")
	}
}

func (d *Dispatcher) unroutable(msg *message.Message, reason string) {
	d.stats.Unroutable++
	d.log.Warnf("dropping %s: %s", msg, reason)
}

// send writes a message to the radio. Called with d.mu held.
func (d *Dispatcher) send(msg *message.Message) {
	if d.link == nil {
		d.contractViolation("send %s with no link", msg)
		return
	}
	d.log.Debugf("tx %s", msg)
	if _, err := d.link.Write(msg.Encode()); err != nil {
		d.log.Warnf("write %s to %s: %v", msg, d.link, err)
		return
	}
	d.stats.Sent++
}

// contractViolation reports a programming error: fatal with the antdebug
// build tag, logged otherwise.
func (d *Dispatcher) contractViolation(format string, args ...any) {
	if debugBuild {
		panic(fmt.Sprintf("dispatch: "+format, args...))
	}
	d.log.Errorf(format, args...)
}

// afterFunc schedules f under the dispatcher lock and delivers the events
// it raised.
func (d *Dispatcher) afterFunc(dur time.Duration, f func()) *clock.Timer {
	return d.clock.AfterFunc(dur, func() {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		f()
		d.mu.Unlock()
		d.drain()
	})
}

// host adapts the Dispatcher to channel.Host. Every method runs with d.mu
// held.
type host struct {
	d *Dispatcher
}

func (h *host) Send(msg *message.Message) {
	h.d.send(msg)
}

func (h *host) AfterFunc(dur time.Duration, f func()) channel.Timer {
	return h.d.afterFunc(dur, f)
}

func (h *host) SensorFound(c *channel.Handler, deviceNumber uint16) {
	h.d.emitSensorFound(c.SensorType(), deviceNumber)
}

func (h *host) SearchTimeout(c *channel.Handler) {
	h.d.emitSensorNotFound(c.SensorType())
}

func (h *host) SensorValue(c *channel.Handler, kind sensor.ValueKind, value float64) {
	h.d.emitSensorValue(kind, c.SensorType(), value)
}

func (h *host) Finished(c *channel.Handler) {
	d := h.d
	n := c.Number()
	if int(n) < len(d.slots) && d.slots[n] == c {
		d.slots[n] = nil
	}
	d.emitChannelClosed(n, c.SensorType())
	for _, s := range d.slots {
		if s != nil {
			return
		}
	}
	d.log.Infof("all channels closed")
	d.emitAllChannelsClosed()
}
