package message

import (
	"encoding/binary"
	"fmt"
)

// Narrowing a message into a view of the wrong kind is a programming error,
// not an input error, so the As* functions panic. Parse guarantees that a
// message of the right kind is long enough for its view.

func mustBe(m *Message, ids ...ID) {
	for _, id := range ids {
		if m.id == id {
			if len(m.data) < id.minDataLength() {
				panic(fmt.Sprintf("message: %s has %d data bytes, view needs %d",
					m.id, len(m.data), id.minDataLength()))
			}
			return
		}
	}
	panic(fmt.Sprintf("message: cannot narrow %s to %v", m.id, ids))
}

// ChannelEvent is a view over a CHANNEL_EVENT message.
// It is either a response to a command (MessageID is that command's ID)
// or an RF event (MessageID is 0x01).
type ChannelEvent struct {
	msg *Message
}

// AsChannelEvent narrows m to a ChannelEvent. It panics if m is not a
// CHANNEL_EVENT message.
func AsChannelEvent(m *Message) ChannelEvent {
	mustBe(m, IDChannelEvent)
	return ChannelEvent{msg: m}
}

// Channel returns the channel number. For a SET_NETWORK_KEY response this
// is the network number.
func (e ChannelEvent) Channel() uint8 { return e.msg.data[0] }

// MessageID returns the ID of the command this event responds to.
func (e ChannelEvent) MessageID() ID { return ID(e.msg.data[1]) }

// Code returns the response or event code.
func (e ChannelEvent) Code() Code { return Code(e.msg.data[2]) }

// IsRFEvent returns true for RF events (as opposed to command responses).
func (e ChannelEvent) IsRFEvent() bool { return e.msg.data[1] == rfEventMessageID }

// IsResponseTo returns true if e acknowledges or rejects the command id.
func (e ChannelEvent) IsResponseTo(id ID) bool {
	return !e.IsRFEvent() && e.MessageID() == id
}

// Message returns the underlying message.
func (e ChannelEvent) Message() *Message { return e.msg }

func (e ChannelEvent) subjectString() string {
	if e.IsRFEvent() {
		return "RF_EVENT"
	}
	return e.MessageID().String()
}

// String returns a debug representation.
func (e ChannelEvent) String() string { return e.msg.String() }

// Broadcast is a view over a BROADCAST_EVENT or ACKNOWLEDGED_DATA message.
type Broadcast struct {
	msg *Message
}

// AsBroadcast narrows m to a Broadcast. It panics if m is not a broadcast,
// acknowledged or burst data message.
func AsBroadcast(m *Message) Broadcast {
	mustBe(m, IDBroadcastData, IDAcknowledgedData, IDBurstData)
	return Broadcast{msg: m}
}

// Channel returns the channel number.
func (b Broadcast) Channel() uint8 { return b.msg.data[0] }

// Data returns the 8-byte page. Extended data after the page is ignored.
func (b Broadcast) Data() [PageSize]byte {
	var page [PageSize]byte
	copy(page[:], b.msg.data[1:1+PageSize])
	return page
}

// Page returns the data page number with the toggle bit cleared.
func (b Broadcast) Page() uint8 { return b.msg.data[1] & 0x7F }

// Acknowledged returns true if this page was sent as acknowledged data.
func (b Broadcast) Acknowledged() bool { return b.msg.id == IDAcknowledgedData }

// Message returns the underlying message.
func (b Broadcast) Message() *Message { return b.msg }

// ChannelID is a view over a SET_CHANNEL_ID message, either a command or
// the radio's answer to a channel ID request.
type ChannelID struct {
	msg *Message
}

// AsChannelID narrows m to a ChannelID. It panics if m is not a
// SET_CHANNEL_ID message.
func AsChannelID(m *Message) ChannelID {
	mustBe(m, IDSetChannelID)
	return ChannelID{msg: m}
}

// Channel returns the channel number.
func (c ChannelID) Channel() uint8 { return c.msg.data[0] }

// DeviceNumber returns the 16-bit device number.
func (c ChannelID) DeviceNumber() uint16 {
	return binary.LittleEndian.Uint16(c.msg.data[1:3])
}

// DeviceType returns the device type with the pairing bit cleared.
func (c ChannelID) DeviceType() uint8 { return c.msg.data[3] & 0x7F }

// Pairing returns the pairing bit of the device type byte.
func (c ChannelID) Pairing() bool { return c.msg.data[3]&0x80 != 0 }

// TransmissionType returns the transmission type.
func (c ChannelID) TransmissionType() uint8 { return c.msg.data[4] }

// Message returns the underlying message.
func (c ChannelID) Message() *Message { return c.msg }
