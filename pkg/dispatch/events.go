package dispatch

import (
	"github.com/backkem/antplus/pkg/sensor"
)

// Callbacks receives dispatcher events. Every field is optional.
//
// Callbacks run on whichever goroutine triggered the event (a command caller,
// the link read loop or a timer), never concurrently with each other, and
// without the dispatcher lock held, so they may call back into the
// dispatcher.
type Callbacks struct {
	// OnLinkScanFinished reports the result of each attempt to find a radio.
	OnLinkScanFinished func(found bool)

	// OnInitializationFinished reports the outcome of the network key
	// handshake, and a failure for every link scan that found no radio.
	OnInitializationFinished func(success bool)

	// OnSearchStarted reports a slave channel allocated for a search.
	OnSearchStarted func(t sensor.Type, channel uint8)

	// OnSensorFound reports a paired sensor.
	OnSensorFound func(t sensor.Type, deviceNumber uint16)

	// OnSensorNotFound reports a search that timed out.
	OnSensorNotFound func(t sensor.Type)

	// OnSensorValue reports a decoded measurement.
	OnSensorValue func(kind sensor.ValueKind, t sensor.Type, value float64)

	// OnChannelClosed reports a channel slot freed.
	OnChannelClosed func(channel uint8, t sensor.Type)

	// OnAllChannelsClosed reports that no channel is occupied anymore.
	OnAllChannelsClosed func()
}

// event invokes the matching callback of a subscriber.
type event func(cb *Callbacks)

type subscriber struct {
	id uint64
	cb Callbacks
}

// Subscribe registers callbacks and returns a function that removes them.
func (d *Dispatcher) Subscribe(cb Callbacks) (unsubscribe func()) {
	d.mu.Lock()
	d.nextSubID++
	id := d.nextSubID
	d.subs = append(d.subs, subscriber{id: id, cb: cb})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.subs {
			if s.id == id {
				d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// emit queues an event. Called with d.mu held; delivered by drain.
func (d *Dispatcher) emit(e event) {
	d.pending = append(d.pending, e)
}

// drain delivers queued events in order. Called without d.mu held. If
// another drain is running, that one delivers the events instead; this keeps
// delivery ordered and lets callbacks re-enter the dispatcher.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.pending) > 0 {
		e := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		subs := d.subs
		d.mu.Unlock()

		for i := range subs {
			e(&subs[i].cb)
		}

		d.mu.Lock()
	}

	d.pending = nil
	d.draining = false
	d.mu.Unlock()
}

func (d *Dispatcher) emitLinkScanFinished(found bool) {
	d.emit(func(cb *Callbacks) {
		if cb.OnLinkScanFinished != nil {
			cb.OnLinkScanFinished(found)
		}
	})
}

func (d *Dispatcher) emitInitializationFinished(success bool) {
	d.emit(func(cb *Callbacks) {
		if cb.OnInitializationFinished != nil {
			cb.OnInitializationFinished(success)
		}
	})
}

func (d *Dispatcher) emitSearchStarted(t sensor.Type, ch uint8) {
	d.emit(func(cb *Callbacks) {
		if cb.OnSearchStarted != nil {
			cb.OnSearchStarted(t, ch)
		}
	})
}

func (d *Dispatcher) emitSensorFound(t sensor.Type, dev uint16) {
	d.emit(func(cb *Callbacks) {
		if cb.OnSensorFound != nil {
			cb.OnSensorFound(t, dev)
		}
	})
}

func (d *Dispatcher) emitSensorNotFound(t sensor.Type) {
	d.emit(func(cb *Callbacks) {
		if cb.OnSensorNotFound != nil {
			cb.OnSensorNotFound(t)
		}
	})
}

func (d *Dispatcher) emitSensorValue(kind sensor.ValueKind, t sensor.Type, value float64) {
	d.emit(func(cb *Callbacks) {
		if cb.OnSensorValue != nil {
			cb.OnSensorValue(kind, t, value)
		}
	})
}

func (d *Dispatcher) emitChannelClosed(ch uint8, t sensor.Type) {
	d.emit(func(cb *Callbacks) {
		if cb.OnChannelClosed != nil {
			cb.OnChannelClosed(ch, t)
		}
	})
}

func (d *Dispatcher) emitAllChannelsClosed() {
	d.emit(func(cb *Callbacks) {
		if cb.OnAllChannelsClosed != nil {
			cb.OnAllChannelsClosed()
		}
	})
}
