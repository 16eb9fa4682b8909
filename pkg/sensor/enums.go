// Package sensor defines the ANT+ sensor types this stack can search for or
// emulate, their device profiles, and the kinds of values they carry.
//
// A Type selects a Profile (device type byte, channel period, RF frequency).
// Decoded and encoded measurements are expressed as a ValueKind plus a
// float64 in SI-ish units (bpm, W, rpm, m/s, %, kg).
package sensor

import (
	"fmt"
	"strings"
)

// Type identifies an ANT+ device profile.
type Type int

const (
	// TypeUnknown indicates an uninitialized or invalid sensor type.
	TypeUnknown Type = iota

	// TypeHeartRate is a heart rate monitor.
	TypeHeartRate

	// TypePower is a bicycle power meter.
	TypePower

	// TypeCadence is a cadence-only sensor.
	TypeCadence

	// TypeSpeed is a speed-only sensor.
	TypeSpeed

	// TypeSpeedAndCadence is a combined speed and cadence sensor.
	TypeSpeedAndCadence

	// TypeSmartTrainer is a fitness equipment (FE-C) trainer.
	TypeSmartTrainer
)

// Types lists every valid sensor type in a stable order.
var Types = []Type{
	TypeHeartRate,
	TypePower,
	TypeCadence,
	TypeSpeed,
	TypeSpeedAndCadence,
	TypeSmartTrainer,
}

// String returns a human-readable name for the sensor type.
func (t Type) String() string {
	switch t {
	case TypeHeartRate:
		return "HEART_RATE"
	case TypePower:
		return "POWER"
	case TypeCadence:
		return "CADENCE"
	case TypeSpeed:
		return "SPEED"
	case TypeSpeedAndCadence:
		return "SPEED_AND_CADENCE"
	case TypeSmartTrainer:
		return "SMART_TRAINER"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// IsValid returns true if the sensor type is a defined value.
func (t Type) IsValid() bool {
	return t >= TypeHeartRate && t <= TypeSmartTrainer
}

// ParseType parses a sensor type name. Matching is case-insensitive and
// accepts a few short aliases (hr, power, cad, spd, sc, fec).
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heart_rate", "heartrate", "hr":
		return TypeHeartRate, nil
	case "power", "pwr":
		return TypePower, nil
	case "cadence", "cad":
		return TypeCadence, nil
	case "speed", "spd":
		return TypeSpeed, nil
	case "speed_and_cadence", "speedcadence", "sc":
		return TypeSpeedAndCadence, nil
	case "smart_trainer", "trainer", "fec", "fe-c":
		return TypeSmartTrainer, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// ValueKind identifies what a sensor value measures.
type ValueKind int

const (
	// ValueUnknown indicates an uninitialized or invalid value kind.
	ValueUnknown ValueKind = iota

	// ValueHeartRate is heart rate in beats per minute.
	ValueHeartRate

	// ValuePower is instantaneous power in watts.
	ValuePower

	// ValueCadence is crank cadence in revolutions per minute.
	ValueCadence

	// ValueSpeed is ground speed in meters per second.
	ValueSpeed

	// ValueWheelSpeed is wheel speed in revolutions per minute.
	ValueWheelSpeed

	// ValueSlope is the simulated road grade in percent.
	ValueSlope

	// ValueUserWeight is the rider weight in kilograms.
	ValueUserWeight

	// ValueBikeWeight is the bicycle weight in kilograms.
	ValueBikeWeight
)

// String returns a human-readable name for the value kind.
func (k ValueKind) String() string {
	switch k {
	case ValueHeartRate:
		return "HEART_RATE"
	case ValuePower:
		return "POWER"
	case ValueCadence:
		return "CADENCE"
	case ValueSpeed:
		return "SPEED"
	case ValueWheelSpeed:
		return "WHEEL_SPEED"
	case ValueSlope:
		return "SLOPE"
	case ValueUserWeight:
		return "USER_WEIGHT"
	case ValueBikeWeight:
		return "BIKE_WEIGHT"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Unit returns the unit symbol for values of this kind.
func (k ValueKind) Unit() string {
	switch k {
	case ValueHeartRate:
		return "bpm"
	case ValuePower:
		return "W"
	case ValueCadence, ValueWheelSpeed:
		return "rpm"
	case ValueSpeed:
		return "m/s"
	case ValueSlope:
		return "%"
	case ValueUserWeight, ValueBikeWeight:
		return "kg"
	default:
		return ""
	}
}
