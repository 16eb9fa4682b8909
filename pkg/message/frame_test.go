package message

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseKnownFrames(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		wantID   ID
		wantData []byte
	}{
		{
			name:     "System reset",
			frame:    []byte{0xA4, 0x01, 0x4A, 0x00, 0xEF},
			wantID:   IDSystemReset,
			wantData: []byte{0x00},
		},
		{
			name:     "ANT+ network key",
			frame:    []byte{0xA4, 0x09, 0x46, 0x01, 0xB9, 0xA5, 0x21, 0xFB, 0xBD, 0x72, 0xC3, 0x45, 0x65},
			wantID:   IDSetNetworkKey,
			wantData: []byte{0x01, 0xB9, 0xA5, 0x21, 0xFB, 0xBD, 0x72, 0xC3, 0x45},
		},
		{
			name:     "Assign channel response",
			frame:    []byte{0xA4, 0x03, 0x40, 0x00, 0x42, 0x00, 0xA5},
			wantID:   IDChannelEvent,
			wantData: []byte{0x00, 0x42, 0x00},
		},
		{
			name:     "Heart rate broadcast",
			frame:    []byte{0xA4, 0x09, 0x4E, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x48, 0xAB},
			wantID:   IDBroadcastData,
			wantData: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x48},
		},
		{
			name:     "Channel ID",
			frame:    []byte{0xA4, 0x05, 0x51, 0x02, 0x39, 0x30, 0x78, 0x01, 0x82},
			wantID:   IDSetChannelID,
			wantData: []byte{0x02, 0x39, 0x30, 0x78, 0x01},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Parse(tc.frame)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if msg.ID() != tc.wantID {
				t.Errorf("ID() = %s, want %s", msg.ID(), tc.wantID)
			}
			if !bytes.Equal(msg.Data(), tc.wantData) {
				t.Errorf("Data() = %X, want %X", msg.Data(), tc.wantData)
			}

			// Round trip: serialize(parse(bytes)) == bytes
			if got := msg.Encode(); !bytes.Equal(got, tc.frame) {
				t.Errorf("Encode() = %X, want %X", got, tc.frame)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		wantErr error
	}{
		{
			name:    "Too short",
			frame:   []byte{0xA4, 0x00, 0x4A},
			wantErr: ErrFrameTooShort,
		},
		{
			name:    "Missing sync",
			frame:   []byte{0xA5, 0x01, 0x4A, 0x00, 0xEF},
			wantErr: ErrBadSync,
		},
		{
			name:    "Length longer than frame",
			frame:   []byte{0xA4, 0x02, 0x4A, 0x00, 0xEF},
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "Trailing bytes",
			frame:   []byte{0xA4, 0x01, 0x4A, 0x00, 0xEF, 0x00},
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "Bad checksum",
			frame:   []byte{0xA4, 0x01, 0x4A, 0x00, 0xEE},
			wantErr: ErrBadChecksum,
		},
		{
			name:    "Length over maximum",
			frame:   append([]byte{0xA4, MaxDataSize + 1}, make([]byte, MaxDataSize+3)...),
			wantErr: ErrPayloadTooLong,
		},
		{
			name:    "Channel event too short",
			frame:   New(IDChannelEvent, 0x00, 0x42).Encode(),
			wantErr: ErrPayloadTooShort,
		},
		{
			name:    "Broadcast without full page",
			frame:   New(IDBroadcastData, 0x00, 0x01, 0x02).Encode(),
			wantErr: ErrPayloadTooShort,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.frame)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tc.wantErr)
			}
			if !IsFramingError(err) {
				t.Errorf("IsFramingError(%v) = false", err)
			}
		})
	}
}

func TestEncodeRecomputesLengthAndChecksum(t *testing.T) {
	msg := New(IDOpenChannel, 0x03)
	frame := msg.Encode()

	if frame[0] != Sync {
		t.Errorf("sync = 0x%02X, want 0x%02X", frame[0], Sync)
	}
	if frame[1] != 1 {
		t.Errorf("len = %d, want 1", frame[1])
	}
	if got := Checksum(frame[:len(frame)-1]); got != frame[len(frame)-1] {
		t.Errorf("checksum = 0x%02X, want 0x%02X", frame[len(frame)-1], got)
	}
	if len(frame) != msg.Size() {
		t.Errorf("len(frame) = %d, Size() = %d", len(frame), msg.Size())
	}
}

func TestMessageImmutable(t *testing.T) {
	data := []byte{0x00, 0x01}
	msg := New(IDChannelPeriod, data...)
	data[1] = 0xFF

	got := msg.Data()
	if got[1] != 0x01 {
		t.Fatalf("message changed with caller slice: %X", got)
	}

	got[0] = 0x7F
	if ch, _ := msg.Channel(); ch != 0x00 {
		t.Fatalf("message changed through Data() copy: channel %d", ch)
	}
}

func TestCorruptedPayloadFailsChecksum(t *testing.T) {
	frame := BroadcastData(1, [PageSize]byte{1, 2, 3, 4, 5, 6, 7, 8}).Encode()

	for i := HeaderSize; i < len(frame)-1; i++ {
		corrupt := bytes.Clone(frame)
		corrupt[i] ^= 0x10
		if _, err := Parse(corrupt); !errors.Is(err, ErrBadChecksum) {
			t.Errorf("byte %d corrupted: Parse() error = %v, want ErrBadChecksum", i, err)
		}
	}
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		msg  *Message
		want string
	}{
		{ChannelResponse(0, IDAssignChannel, CodeResponseNoError), "CHANNEL_EVENT[ch=0] ASSIGN_CHANNEL: RESPONSE_NO_ERROR"},
		{ChannelRFEvent(2, CodeEventChannelClosed), "CHANNEL_EVENT[ch=2] RF_EVENT: EVENT_CHANNEL_CLOSED"},
		{SystemReset(), "SYSTEM_RESET 00"},
		{OpenChannel(1), "OPEN_CHANNEL[ch=1]"},
	}

	for _, tc := range tests {
		if got := tc.msg.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
