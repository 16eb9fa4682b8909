package channel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/backkem/antplus/pkg/message"
	"github.com/backkem/antplus/pkg/sensor"
)

// Encoding limits.
const (
	maxSlopePercent = 200.0
	maxUserWeightKg = 655.34
	maxBikeWeightKg = 50.0

	gradeResolution      = 0.01 // percent
	userWeightResolution = 0.01 // kg
	bikeWeightResolution = 0.05 // kg
)

// encoder turns a value into the next page to transmit. Encoders keep the
// cumulative fields of their pages.
type encoder interface {
	encode(kind sensor.ValueKind, value float64) ([message.PageSize]byte, error)
}

// newEncoder returns the encoder for a sensor type in a role, or nil if the
// combination cannot transmit.
func newEncoder(t sensor.Type, role Role) encoder {
	switch {
	case t == sensor.TypeSmartTrainer:
		// Trainer control pages go both ways: broadcast by a master, or
		// acknowledged to a tracked trainer.
		return &trainerEncoder{bikeWeight: invalid12Bit, userWeight: invalidUint16}
	case role == RoleMaster && t == sensor.TypeHeartRate:
		return &heartRateEncoder{}
	case role == RoleMaster && t == sensor.TypePower:
		return &powerEncoder{cadence: invalidByte}
	default:
		return nil
	}
}

func checkRange(kind sensor.ValueKind, value, lo, hi float64) error {
	if math.IsNaN(value) || value < lo || value > hi {
		return fmt.Errorf("%w: %s %v not in [%v, %v]", ErrValueOutOfRange, kind, value, lo, hi)
	}
	return nil
}

func unsupported(kind sensor.ValueKind, t sensor.Type) error {
	return fmt.Errorf("%w: %s on %s", ErrUnsupportedValue, kind, t)
}

// heartRateEncoder emits page 4 (previous heart beat). Each value advances
// the beat event by one beat at the given rate.
type heartRateEncoder struct {
	beatTime     uint16
	prevBeatTime uint16
	beatCount    uint8
	sent         uint32
}

func (e *heartRateEncoder) encode(kind sensor.ValueKind, value float64) ([message.PageSize]byte, error) {
	var page [message.PageSize]byte
	if kind != sensor.ValueHeartRate {
		return page, unsupported(kind, sensor.TypeHeartRate)
	}
	if err := checkRange(kind, value, 0, 255); err != nil {
		return page, err
	}

	bpm := uint8(math.Round(value))
	if bpm > 0 {
		e.prevBeatTime = e.beatTime
		e.beatTime += uint16(math.Round(60 * eventTicksPerSecond / float64(bpm)))
		e.beatCount++
	}

	// The toggle bit flips every four messages.
	page[0] = pageHeartRatePrevious
	if (e.sent/4)%2 == 1 {
		page[0] |= 0x80
	}
	e.sent++
	page[1] = invalidByte
	binary.LittleEndian.PutUint16(page[2:4], e.prevBeatTime)
	binary.LittleEndian.PutUint16(page[4:6], e.beatTime)
	page[6] = e.beatCount
	page[7] = bpm
	return page, nil
}

// powerEncoder emits the power-only page with a running event count and
// accumulated power.
type powerEncoder struct {
	eventCount  uint8
	accumulated uint16
	power       uint16
	cadence     uint8
}

func (e *powerEncoder) encode(kind sensor.ValueKind, value float64) ([message.PageSize]byte, error) {
	var page [message.PageSize]byte
	switch kind {
	case sensor.ValuePower:
		if err := checkRange(kind, value, 0, math.MaxUint16); err != nil {
			return page, err
		}
		e.power = uint16(math.Round(value))
		e.eventCount++
		e.accumulated += e.power
	case sensor.ValueCadence:
		if err := checkRange(kind, value, 0, 254); err != nil {
			return page, err
		}
		e.cadence = uint8(math.Round(value))
	default:
		return page, unsupported(kind, sensor.TypePower)
	}

	page[0] = pagePowerOnly
	page[1] = e.eventCount
	page[2] = invalidByte
	page[3] = e.cadence
	binary.LittleEndian.PutUint16(page[4:6], e.accumulated)
	binary.LittleEndian.PutUint16(page[6:8], e.power)
	return page, nil
}

// trainerEncoder emits FE-C control pages: track resistance for slope and
// user configuration for weights.
type trainerEncoder struct {
	userWeight uint16
	bikeWeight uint16
}

func (e *trainerEncoder) encode(kind sensor.ValueKind, value float64) ([message.PageSize]byte, error) {
	switch kind {
	case sensor.ValueSlope:
		if err := checkRange(kind, value, -maxSlopePercent, maxSlopePercent); err != nil {
			return [message.PageSize]byte{}, err
		}
		return trackResistancePage(value), nil

	case sensor.ValueUserWeight:
		if err := checkRange(kind, value, 0, maxUserWeightKg); err != nil {
			return [message.PageSize]byte{}, err
		}
		e.userWeight = uint16(math.Round(value / userWeightResolution))
		return e.userConfigPage(), nil

	case sensor.ValueBikeWeight:
		if err := checkRange(kind, value, 0, maxBikeWeightKg); err != nil {
			return [message.PageSize]byte{}, err
		}
		e.bikeWeight = uint16(math.Round(value / bikeWeightResolution))
		return e.userConfigPage(), nil
	}
	return [message.PageSize]byte{}, unsupported(kind, sensor.TypeSmartTrainer)
}

func trackResistancePage(slope float64) [message.PageSize]byte {
	page := [message.PageSize]byte{pageTrackResistance, 0xFF, 0xFF, 0xFF, 0xFF}
	grade := uint16(math.Round((slope + maxSlopePercent) / gradeResolution))
	binary.LittleEndian.PutUint16(page[5:7], grade)
	page[7] = invalidByte // default rolling resistance
	return page
}

func (e *trainerEncoder) userConfigPage() [message.PageSize]byte {
	var page [message.PageSize]byte
	page[0] = pageUserConfig
	binary.LittleEndian.PutUint16(page[1:3], e.userWeight)
	page[3] = invalidByte
	// Bike wheel diameter offset (low nibble) is not set.
	page[4] = byte(e.bikeWeight&0x0F)<<4 | 0x0F
	page[5] = byte(e.bikeWeight >> 4)
	page[6] = invalidByte // wheel diameter
	page[7] = 0x00        // gear ratio: invalid
	return page
}
