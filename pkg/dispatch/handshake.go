package dispatch

import (
	"github.com/backkem/antplus/pkg/message"
	"github.com/benbjohnson/clock"
)

// handshakeState tracks the initialization handshake.
type handshakeState int

const (
	handshakeResetSent handshakeState = iota
	handshakeKeySent
	handshakeDone
)

// String returns a human-readable name for the state.
func (s handshakeState) String() string {
	switch s {
	case handshakeResetSent:
		return "ResetSent"
	case handshakeKeySent:
		return "KeySent"
	case handshakeDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// handshake is one run of reset, settle, network key, acknowledgment.
// It ends with exactly one InitializationFinished event unless it is
// cancelled first.
type handshake struct {
	state   handshakeState
	settle  *clock.Timer
	timeout *clock.Timer
}

func (h *handshake) stop() {
	h.state = handshakeDone
	if h.settle != nil {
		h.settle.Stop()
	}
	if h.timeout != nil {
		h.timeout.Stop()
	}
}

// startHandshake resets the radio and arms the settle and initialization
// timers. Called with d.mu held and a link present.
func (d *Dispatcher) startHandshake() {
	s := &handshake{state: handshakeResetSent}
	d.session = s

	d.log.Infof("initializing %s", d.link)
	s.timeout = d.afterFunc(d.config.InitializationTimeout, func() {
		d.handshakeTimedOut(s)
	})
	d.send(message.SystemReset())
	s.settle = d.afterFunc(d.config.ResetSettleTime, func() {
		if d.session != s || s.state != handshakeResetSent {
			return
		}
		s.state = handshakeKeySent
		d.send(message.SetNetworkKey(d.config.NetworkNumber, d.config.NetworkKey))
	})
}

// cancelHandshake abandons a running handshake without reporting it.
func (d *Dispatcher) cancelHandshake() {
	if d.session != nil {
		d.session.stop()
		d.session = nil
	}
}

func (d *Dispatcher) handshakeTimedOut(s *handshake) {
	if d.session != s || s.state == handshakeDone {
		return
	}
	d.log.Warnf("initialization timed out in state %s", s.state)
	s.stop()
	d.session = nil
	d.initialized = false
	d.emitInitializationFinished(false)
}

// handleNetworkKeyResponse completes the handshake on the radio's answer to
// SET_NETWORK_KEY.
func (d *Dispatcher) handleNetworkKeyResponse(ev message.ChannelEvent) {
	s := d.session
	if s == nil || s.state != handshakeKeySent {
		d.log.Debugf("ignoring stale network key response: %s", ev.Code())
		return
	}
	s.stop()
	d.session = nil

	success := ev.Code() == message.CodeResponseNoError
	d.initialized = success
	if success {
		d.log.Infof("%s initialized", d.link)
	} else {
		d.log.Warnf("network key rejected: %s", ev.Code())
	}
	d.emitInitializationFinished(success)
}
