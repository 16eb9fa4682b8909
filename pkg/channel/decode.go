package channel

import (
	"encoding/binary"

	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
)

// Page numbers this package reads or writes.
const (
	pageHeartRatePrevious = 0x04
	pagePowerOnly         = 0x10
	pageGeneralFE         = 0x10
	pageTrainerData       = 0x19
	pageTrackResistance   = 0x33
	pageUserConfig        = 0x37
)

// Field values meaning "not available".
const (
	invalidByte   = 0xFF
	invalidUint16 = 0xFFFF
	invalid12Bit  = 0xFFF
)

// eventTicksPerSecond is the resolution of ANT+ event time fields.
const eventTicksPerSecond = 1024

// Value is one decoded measurement.
type Value struct {
	Kind  sensor.ValueKind
	Value float64
}

// decoder turns broadcast pages into values. Decoders may keep state
// between pages.
type decoder interface {
	decode(page [message.PageSize]byte) []Value
}

func newDecoder(t sensor.Type, wheelCircumference float64) decoder {
	switch t {
	case sensor.TypeHeartRate:
		return heartRateDecoder{}
	case sensor.TypePower:
		return powerDecoder{}
	case sensor.TypeCadence:
		return &cadenceDecoder{}
	case sensor.TypeSpeed:
		return &speedDecoder{circumference: wheelCircumference}
	case sensor.TypeSpeedAndCadence:
		return &speedCadenceDecoder{speed: speedDecoder{circumference: wheelCircumference}}
	case sensor.TypeSmartTrainer:
		return trainerDecoder{}
	default:
		return nil
	}
}

// heartRateDecoder reads the computed heart rate, present on every page.
type heartRateDecoder struct{}

func (heartRateDecoder) decode(page [message.PageSize]byte) []Value {
	return []Value{{Kind: sensor.ValueHeartRate, Value: float64(page[7])}}
}

// powerDecoder reads the standard power-only page.
type powerDecoder struct{}

func (powerDecoder) decode(page [message.PageSize]byte) []Value {
	if page[0]&0x7F != pagePowerOnly {
		return nil
	}
	values := []Value{{
		Kind:  sensor.ValuePower,
		Value: float64(binary.LittleEndian.Uint16(page[6:8])),
	}}
	if page[3] != invalidByte {
		values = append(values, Value{Kind: sensor.ValueCadence, Value: float64(page[3])})
	}
	return values
}

// eventCounter tracks a 16-bit event time and revolution count pair.
// Both fields wrap; deltas use unsigned 16-bit subtraction.
type eventCounter struct {
	time   uint16
	revs   uint16
	primed bool
}

// update stores the new sample and returns the deltas against the previous
// one. ok is false for the first sample and for a repeated event time.
func (c *eventCounter) update(time, revs uint16) (dRevs, dTime uint16, ok bool) {
	if !c.primed {
		c.time, c.revs, c.primed = time, revs, true
		return 0, 0, false
	}
	dTime = time - c.time
	dRevs = revs - c.revs
	c.time, c.revs = time, revs
	if dTime == 0 {
		return 0, 0, false
	}
	return dRevs, dTime, true
}

// rpm converts revolution and event time deltas to revolutions per minute.
func rpm(dRevs, dTime uint16) float64 {
	return float64(dRevs) * 60 * eventTicksPerSecond / float64(dTime)
}

// cadenceDecoder reads crank event time at [4:6] and revolutions at [6:8].
type cadenceDecoder struct {
	crank eventCounter
}

func (d *cadenceDecoder) decode(page [message.PageSize]byte) []Value {
	dRevs, dTime, ok := d.crank.update(
		binary.LittleEndian.Uint16(page[4:6]),
		binary.LittleEndian.Uint16(page[6:8]),
	)
	if !ok {
		return nil
	}
	return []Value{{Kind: sensor.ValueCadence, Value: rpm(dRevs, dTime)}}
}

// speedDecoder reads wheel event time at [4:6] and revolutions at [6:8].
type speedDecoder struct {
	wheel         eventCounter
	circumference float64
}

func (d *speedDecoder) decode(page [message.PageSize]byte) []Value {
	return d.decodeWheel(
		binary.LittleEndian.Uint16(page[4:6]),
		binary.LittleEndian.Uint16(page[6:8]),
	)
}

func (d *speedDecoder) decodeWheel(time, revs uint16) []Value {
	dRevs, dTime, ok := d.wheel.update(time, revs)
	if !ok {
		return nil
	}
	seconds := float64(dTime) / eventTicksPerSecond
	return []Value{
		{Kind: sensor.ValueSpeed, Value: float64(dRevs) * d.circumference / seconds},
		{Kind: sensor.ValueWheelSpeed, Value: rpm(dRevs, dTime)},
	}
}

// speedCadenceDecoder reads the combined page: crank time/revs at [0:4],
// wheel time/revs at [4:8].
type speedCadenceDecoder struct {
	crank eventCounter
	speed speedDecoder
}

func (d *speedCadenceDecoder) decode(page [message.PageSize]byte) []Value {
	var values []Value
	dRevs, dTime, ok := d.crank.update(
		binary.LittleEndian.Uint16(page[0:2]),
		binary.LittleEndian.Uint16(page[2:4]),
	)
	if ok {
		values = append(values, Value{Kind: sensor.ValueCadence, Value: rpm(dRevs, dTime)})
	}
	return append(values, d.speed.decodeWheel(
		binary.LittleEndian.Uint16(page[4:6]),
		binary.LittleEndian.Uint16(page[6:8]),
	)...)
}

// trainerDecoder reads the FE-C general data and trainer data pages.
type trainerDecoder struct{}

func (trainerDecoder) decode(page [message.PageSize]byte) []Value {
	switch page[0] & 0x7F {
	case pageGeneralFE:
		raw := binary.LittleEndian.Uint16(page[4:6])
		if raw == invalidUint16 {
			return nil
		}
		return []Value{{Kind: sensor.ValueSpeed, Value: float64(raw) / 1000}}

	case pageTrainerData:
		var values []Value
		if page[2] != invalidByte {
			values = append(values, Value{Kind: sensor.ValueCadence, Value: float64(page[2])})
		}
		power := uint16(page[5]) | uint16(page[6]&0x0F)<<8
		if power != invalid12Bit {
			values = append(values, Value{Kind: sensor.ValuePower, Value: float64(power)})
		}
		return values
	}
	return nil
}
