package message

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Message is a parsed ANT message: an ID plus its data bytes.
// Frame bytes (sync, length, checksum) are not stored; Encode recomputes them.
//
// A Message is immutable once constructed. Data returns a copy.
type Message struct {
	id   ID
	data []byte
}

// New creates a message with the given ID and data.
// The data slice is copied. New does not enforce per-ID minimum lengths;
// use Parse for bytes that come from the wire.
func New(id ID, data ...byte) *Message {
	d := make([]byte, len(data))
	copy(d, data)
	return &Message{id: id, data: d}
}

// ID returns the message ID.
func (m *Message) ID() ID {
	return m.id
}

// Data returns a copy of the data bytes following the ID.
func (m *Message) Data() []byte {
	d := make([]byte, len(m.data))
	copy(d, m.data)
	return d
}

// Len returns the number of data bytes (the LEN field on the wire).
func (m *Message) Len() int {
	return len(m.data)
}

// Channel returns the channel number of a channel-scoped message.
// The second return value is false for messages that carry no channel.
func (m *Message) Channel() (uint8, bool) {
	if !m.id.IsChannelScoped() || len(m.data) == 0 {
		return 0, false
	}
	return m.data[0], true
}

// Size returns the encoded frame size in bytes.
func (m *Message) Size() int {
	return FrameOverhead + len(m.data)
}

// Encode serializes the message into a frame.
// Length and checksum are always computed from the data.
func (m *Message) Encode() []byte {
	buf := make([]byte, m.Size())
	m.EncodeTo(buf)
	return buf
}

// EncodeTo writes the frame into buf and returns the number of bytes written.
// buf must be at least Size() bytes.
func (m *Message) EncodeTo(buf []byte) int {
	buf[0] = Sync
	buf[1] = byte(len(m.data))
	buf[2] = byte(m.id)
	n := HeaderSize + copy(buf[HeaderSize:], m.data)
	buf[n] = Checksum(buf[:n])
	return n + ChecksumSize
}

// Parse decodes exactly one frame.
// frame must start with the sync byte and contain nothing after the checksum.
func Parse(frame []byte) (*Message, error) {
	if len(frame) < FrameOverhead {
		return nil, ErrFrameTooShort
	}
	if frame[0] != Sync {
		return nil, ErrBadSync
	}

	dataLen := int(frame[1])
	if dataLen > MaxDataSize {
		return nil, ErrPayloadTooLong
	}
	if len(frame) != dataLen+FrameOverhead {
		return nil, ErrLengthMismatch
	}

	end := HeaderSize + dataLen
	if Checksum(frame[:end]) != frame[end] {
		return nil, ErrBadChecksum
	}

	id := ID(frame[2])
	if dataLen < id.minDataLength() {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d",
			ErrPayloadTooShort, id, id.minDataLength(), dataLen)
	}

	return New(id, frame[HeaderSize:end]...), nil
}

// FrameLength returns the total frame length announced by a header, or
// false if header is too short to contain the LEN field.
func FrameLength(header []byte) (int, bool) {
	if len(header) < 2 {
		return 0, false
	}
	return int(header[1]) + FrameOverhead, true
}

// Checksum returns the XOR of all bytes in b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}

// String returns a debug representation such as
// "BROADCAST_EVENT[ch=0] 0000000000000048".
func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.id.String())
	data := m.data
	if ch, ok := m.Channel(); ok {
		fmt.Fprintf(&sb, "[ch=%d]", ch)
		data = data[1:]
	}
	if m.id == IDChannelEvent && len(m.data) >= 3 {
		ev := ChannelEvent{msg: m}
		fmt.Fprintf(&sb, " %s: %s", ev.subjectString(), ev.Code())
		return sb.String()
	}
	if len(data) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.ToUpper(hex.EncodeToString(data)))
	}
	return sb.String()
}
