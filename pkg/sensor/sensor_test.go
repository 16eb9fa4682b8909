package sensor

import (
	"errors"
	"testing"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		t    Type
		want string
	}{
		{TypeHeartRate, "HEART_RATE"},
		{TypePower, "POWER"},
		{TypeCadence, "CADENCE"},
		{TypeSpeed, "SPEED"},
		{TypeSpeedAndCadence, "SPEED_AND_CADENCE"},
		{TypeSmartTrainer, "SMART_TRAINER"},
		{TypeUnknown, "Unknown(0)"},
		{Type(42), "Unknown(42)"},
	}

	for _, tc := range tests {
		if got := tc.t.String(); got != tc.want {
			t.Errorf("Type(%d).String() = %q, want %q", int(tc.t), got, tc.want)
		}
	}
}

func TestTypeIsValid(t *testing.T) {
	for _, typ := range Types {
		if !typ.IsValid() {
			t.Errorf("%s.IsValid() = false", typ)
		}
	}
	if TypeUnknown.IsValid() || Type(7).IsValid() {
		t.Error("invalid type reported valid")
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"hr", TypeHeartRate},
		{"HEART_RATE", TypeHeartRate},
		{" power ", TypePower},
		{"cad", TypeCadence},
		{"speed", TypeSpeed},
		{"sc", TypeSpeedAndCadence},
		{"FE-C", TypeSmartTrainer},
		{"trainer", TypeSmartTrainer},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseType(tc.in)
			if err != nil {
				t.Fatalf("ParseType(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseType(%q) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}

	if _, err := ParseType("treadmill"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("ParseType(treadmill) error = %v, want ErrUnknownType", err)
	}
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		t          Type
		deviceType uint8
		period     uint16
		master     bool
	}{
		{TypeHeartRate, 120, 8070, true},
		{TypePower, 11, 8182, true},
		{TypeCadence, 122, 8102, false},
		{TypeSpeed, 123, 8118, false},
		{TypeSpeedAndCadence, 121, 8086, false},
		{TypeSmartTrainer, 17, 8192, true},
	}

	for _, tc := range tests {
		t.Run(tc.t.String(), func(t *testing.T) {
			p := tc.t.Profile()
			if p.DeviceType != tc.deviceType {
				t.Errorf("DeviceType = %d, want %d", p.DeviceType, tc.deviceType)
			}
			if p.Period != tc.period {
				t.Errorf("Period = %d, want %d", p.Period, tc.period)
			}
			if p.MasterCapable != tc.master {
				t.Errorf("MasterCapable = %v, want %v", p.MasterCapable, tc.master)
			}

			back, ok := TypeForDeviceType(tc.deviceType | 0x80)
			if !ok || back != tc.t {
				t.Errorf("TypeForDeviceType(%d) = %s, %v", tc.deviceType, back, ok)
			}
			if len(tc.t.Kinds()) == 0 {
				t.Error("Kinds() is empty")
			}
		})
	}

	if _, ok := TypeForDeviceType(0x55); ok {
		t.Error("TypeForDeviceType(0x55) matched")
	}
}

func TestValueKindUnit(t *testing.T) {
	tests := []struct {
		k    ValueKind
		name string
		unit string
	}{
		{ValueHeartRate, "HEART_RATE", "bpm"},
		{ValuePower, "POWER", "W"},
		{ValueCadence, "CADENCE", "rpm"},
		{ValueSpeed, "SPEED", "m/s"},
		{ValueWheelSpeed, "WHEEL_SPEED", "rpm"},
		{ValueSlope, "SLOPE", "%"},
		{ValueUserWeight, "USER_WEIGHT", "kg"},
		{ValueBikeWeight, "BIKE_WEIGHT", "kg"},
	}

	for _, tc := range tests {
		if tc.k.String() != tc.name {
			t.Errorf("String() = %q, want %q", tc.k.String(), tc.name)
		}
		if tc.k.Unit() != tc.unit {
			t.Errorf("%s.Unit() = %q, want %q", tc.name, tc.k.Unit(), tc.unit)
		}
	}
}
