// Package message implements the ANT serial message format.
// This package handles the wire framing of messages exchanged with an ANT USB
// radio as defined in the ANT Message Protocol and Usage document.
//
// The package provides:
//   - Frame parsing and encoding with XOR checksum validation
//   - Narrowed views over channel events, broadcast data and channel IDs
//   - Builders for the host-to-radio commands used by channel setup
package message

import "fmt"

// ID identifies the kind of an ANT message (the byte after the length).
type ID uint8

const (
	// IDChannelEvent is a channel response or RF event (0x40).
	IDChannelEvent ID = 0x40

	// IDUnassignChannel releases a channel assignment (0x41).
	IDUnassignChannel ID = 0x41

	// IDAssignChannel assigns a channel type and network (0x42).
	IDAssignChannel ID = 0x42

	// IDChannelPeriod sets the message period in 1/32768 s units (0x43).
	IDChannelPeriod ID = 0x43

	// IDSearchTimeout sets the radio search timeout in 2.5 s units (0x44).
	IDSearchTimeout ID = 0x44

	// IDChannelRFFrequency sets the RF frequency offset from 2400 MHz (0x45).
	IDChannelRFFrequency ID = 0x45

	// IDSetNetworkKey configures a network key (0x46).
	IDSetNetworkKey ID = 0x46

	// IDTransmitPower sets the transmit power level (0x47).
	IDTransmitPower ID = 0x47

	// IDSystemReset resets the radio (0x4A).
	IDSystemReset ID = 0x4A

	// IDOpenChannel opens a configured channel (0x4B).
	IDOpenChannel ID = 0x4B

	// IDCloseChannel closes an open channel (0x4C).
	IDCloseChannel ID = 0x4C

	// IDRequestMessage asks the radio to send a message (0x4D).
	IDRequestMessage ID = 0x4D

	// IDBroadcastData carries an 8-byte broadcast page (0x4E).
	IDBroadcastData ID = 0x4E

	// IDAcknowledgedData carries an 8-byte page that is acknowledged over the air (0x4F).
	IDAcknowledgedData ID = 0x4F

	// IDBurstData carries one packet of a burst transfer (0x50).
	IDBurstData ID = 0x50

	// IDSetChannelID sets, or reports, the channel ID (0x51).
	IDSetChannelID ID = 0x51

	// IDCapabilities reports radio capabilities (0x54).
	IDCapabilities ID = 0x54

	// IDANTVersion reports the firmware version string (0x3E).
	IDANTVersion ID = 0x3E

	// IDStartupMessage is sent by the radio after a reset (0x6F).
	IDStartupMessage ID = 0x6F
)

// IDBroadcastEvent is the name used for received broadcast pages.
const IDBroadcastEvent = IDBroadcastData

// String returns a human-readable name for the message ID.
func (id ID) String() string {
	switch id {
	case IDChannelEvent:
		return "CHANNEL_EVENT"
	case IDUnassignChannel:
		return "UNASSIGN_CHANNEL"
	case IDAssignChannel:
		return "ASSIGN_CHANNEL"
	case IDChannelPeriod:
		return "CHANNEL_PERIOD"
	case IDSearchTimeout:
		return "SEARCH_TIMEOUT"
	case IDChannelRFFrequency:
		return "CHANNEL_RF_FREQUENCY"
	case IDSetNetworkKey:
		return "SET_NETWORK_KEY"
	case IDTransmitPower:
		return "TRANSMIT_POWER"
	case IDSystemReset:
		return "SYSTEM_RESET"
	case IDOpenChannel:
		return "OPEN_CHANNEL"
	case IDCloseChannel:
		return "CLOSE_CHANNEL"
	case IDRequestMessage:
		return "REQUEST_MESSAGE"
	case IDBroadcastData:
		return "BROADCAST_EVENT"
	case IDAcknowledgedData:
		return "ACKNOWLEDGED_DATA"
	case IDBurstData:
		return "BURST_DATA"
	case IDSetChannelID:
		return "SET_CHANNEL_ID"
	case IDCapabilities:
		return "CAPABILITIES"
	case IDANTVersion:
		return "ANT_VERSION"
	case IDStartupMessage:
		return "STARTUP_MESSAGE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(id))
	}
}

// IsChannelScoped returns true if the first data byte of a message with this
// ID is a channel number.
func (id ID) IsChannelScoped() bool {
	switch id {
	case IDChannelEvent, IDUnassignChannel, IDAssignChannel, IDChannelPeriod,
		IDSearchTimeout, IDChannelRFFrequency, IDOpenChannel, IDCloseChannel,
		IDRequestMessage, IDBroadcastData, IDAcknowledgedData, IDBurstData,
		IDSetChannelID:
		return true
	default:
		return false
	}
}

// minDataLength returns the minimum number of data bytes a message with
// this ID must carry for its narrowed view to be readable.
func (id ID) minDataLength() int {
	switch id {
	case IDChannelEvent:
		return 3
	case IDBroadcastData, IDAcknowledgedData, IDBurstData:
		return 1 + PageSize
	case IDSetChannelID:
		return 5
	default:
		return 0
	}
}

// Code is the result or event code carried by a channel event message.
type Code uint8

const (
	// CodeResponseNoError acknowledges a command.
	CodeResponseNoError Code = 0x00

	// CodeEventRxSearchTimeout reports that the radio search timed out.
	CodeEventRxSearchTimeout Code = 0x01

	// CodeEventRxFail reports a missed receive slot.
	CodeEventRxFail Code = 0x02

	// CodeEventTx reports a completed broadcast slot on a master channel.
	CodeEventTx Code = 0x03

	// CodeEventTransferRxFailed reports a failed acknowledged/burst receive.
	CodeEventTransferRxFailed Code = 0x04

	// CodeEventTransferTxCompleted reports an acknowledged transfer success.
	CodeEventTransferTxCompleted Code = 0x05

	// CodeEventTransferTxFailed reports an acknowledged transfer failure.
	CodeEventTransferTxFailed Code = 0x06

	// CodeEventChannelClosed reports that a channel is closed.
	CodeEventChannelClosed Code = 0x07

	// CodeEventRxFailGoToSearch reports that tracking was lost.
	CodeEventRxFailGoToSearch Code = 0x08

	// CodeEventChannelCollision reports a channel collision.
	CodeEventChannelCollision Code = 0x09

	// CodeChannelInWrongState rejects a command in the current channel state.
	CodeChannelInWrongState Code = 0x15

	// CodeChannelNotOpened rejects a command that needs an open channel.
	CodeChannelNotOpened Code = 0x16

	// CodeChannelIDNotSet rejects opening a channel without an ID.
	CodeChannelIDNotSet Code = 0x18

	// CodeInvalidMessage rejects a malformed command.
	CodeInvalidMessage Code = 0x28
)

// String returns a human-readable name for the code.
func (c Code) String() string {
	switch c {
	case CodeResponseNoError:
		return "RESPONSE_NO_ERROR"
	case CodeEventRxSearchTimeout:
		return "EVENT_RX_SEARCH_TIMEOUT"
	case CodeEventRxFail:
		return "EVENT_RX_FAIL"
	case CodeEventTx:
		return "EVENT_TX"
	case CodeEventTransferRxFailed:
		return "EVENT_TRANSFER_RX_FAILED"
	case CodeEventTransferTxCompleted:
		return "EVENT_TRANSFER_TX_COMPLETED"
	case CodeEventTransferTxFailed:
		return "EVENT_TRANSFER_TX_FAILED"
	case CodeEventChannelClosed:
		return "EVENT_CHANNEL_CLOSED"
	case CodeEventRxFailGoToSearch:
		return "EVENT_RX_FAIL_GO_TO_SEARCH"
	case CodeEventChannelCollision:
		return "EVENT_CHANNEL_COLLISION"
	case CodeChannelInWrongState:
		return "CHANNEL_IN_WRONG_STATE"
	case CodeChannelNotOpened:
		return "CHANNEL_NOT_OPENED"
	case CodeChannelIDNotSet:
		return "CHANNEL_ID_NOT_SET"
	case CodeInvalidMessage:
		return "INVALID_MESSAGE"
	default:
		return fmt.Sprintf("CODE(0x%02X)", uint8(c))
	}
}

// ChannelType is the channel type passed to ASSIGN_CHANNEL.
type ChannelType uint8

const (
	// ChannelTypeBidirectionalSlave receives broadcasts from a master.
	ChannelTypeBidirectionalSlave ChannelType = 0x00

	// ChannelTypeBidirectionalMaster transmits broadcasts.
	ChannelTypeBidirectionalMaster ChannelType = 0x10
)

// Frame format constants.
const (
	// Sync is the first byte of every frame.
	Sync byte = 0xA4

	// HeaderSize covers SYNC, LEN and ID.
	HeaderSize = 3

	// ChecksumSize is the trailing checksum byte.
	ChecksumSize = 1

	// FrameOverhead is the number of frame bytes that are not data.
	FrameOverhead = HeaderSize + ChecksumSize

	// MaxDataSize is the largest LEN value the radio produces or accepts.
	MaxDataSize = 41

	// PageSize is the size of a broadcast/acknowledged data page.
	PageSize = 8

	// rfEventMessageID marks a channel event as an RF event rather than
	// a response to a command.
	rfEventMessageID = 0x01
)

// SearchTimeoutInfinite disables the radio's own search timeout.
const SearchTimeoutInfinite uint8 = 0xFF
