package sensor

import "errors"

// ErrUnknownType is returned by ParseType for unrecognized names.
var ErrUnknownType = errors.New("sensor: unknown sensor type")

// ANT+ network parameters shared by every profile.
const (
	// RFFrequency is the ANT+ RF channel, as an offset from 2400 MHz.
	RFFrequency uint8 = 57

	// NetworkNumber is the network slot the ANT+ key is loaded into.
	NetworkNumber uint8 = 1

	// DefaultWheelCircumference is a 700x23c wheel, in meters.
	DefaultWheelCircumference = 2.105
)

// NetworkKey is the public ANT+ managed network key.
var NetworkKey = [8]byte{0xB9, 0xA5, 0x21, 0xFB, 0xBD, 0x72, 0xC3, 0x45}

// Profile holds the radio parameters of an ANT+ device profile.
type Profile struct {
	// DeviceType is the ANT+ device type byte in the channel ID.
	DeviceType uint8

	// Period is the channel message period in 1/32768 s units.
	Period uint16

	// MasterCapable reports whether this stack can emulate the device.
	MasterCapable bool
}

var profiles = map[Type]Profile{
	TypeHeartRate:       {DeviceType: 120, Period: 8070, MasterCapable: true},
	TypePower:           {DeviceType: 11, Period: 8182, MasterCapable: true},
	TypeCadence:         {DeviceType: 122, Period: 8102},
	TypeSpeed:           {DeviceType: 123, Period: 8118},
	TypeSpeedAndCadence: {DeviceType: 121, Period: 8086},
	TypeSmartTrainer:    {DeviceType: 17, Period: 8192, MasterCapable: true},
}

// Profile returns the device profile for t. It returns the zero Profile for
// invalid types.
func (t Type) Profile() Profile {
	return profiles[t]
}

// TypeForDeviceType maps a device type byte (pairing bit ignored) back to a
// sensor type.
func TypeForDeviceType(deviceType uint8) (Type, bool) {
	deviceType &= 0x7F
	for _, t := range Types {
		if profiles[t].DeviceType == deviceType {
			return t, true
		}
	}
	return TypeUnknown, false
}

// Kinds returns the value kinds a slave channel of this type reports.
func (t Type) Kinds() []ValueKind {
	switch t {
	case TypeHeartRate:
		return []ValueKind{ValueHeartRate}
	case TypePower:
		return []ValueKind{ValuePower, ValueCadence}
	case TypeCadence:
		return []ValueKind{ValueCadence}
	case TypeSpeed:
		return []ValueKind{ValueSpeed, ValueWheelSpeed}
	case TypeSpeedAndCadence:
		return []ValueKind{ValueCadence, ValueSpeed, ValueWheelSpeed}
	case TypeSmartTrainer:
		return []ValueKind{ValueSpeed, ValueCadence, ValuePower}
	default:
		return nil
	}
}
