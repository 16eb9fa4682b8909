package message

import "encoding/binary"

// NetworkKeySize is the size of an ANT network key.
const NetworkKeySize = 8

// SystemReset builds a SYSTEM_RESET command.
func SystemReset() *Message {
	return New(IDSystemReset, 0x00)
}

// SetNetworkKey builds a SET_NETWORK_KEY command for the given network.
func SetNetworkKey(network uint8, key [NetworkKeySize]byte) *Message {
	data := make([]byte, 0, 1+NetworkKeySize)
	data = append(data, network)
	data = append(data, key[:]...)
	return New(IDSetNetworkKey, data...)
}

// AssignChannel builds an ASSIGN_CHANNEL command.
func AssignChannel(channel uint8, channelType ChannelType, network uint8) *Message {
	return New(IDAssignChannel, channel, byte(channelType), network)
}

// UnassignChannel builds an UNASSIGN_CHANNEL command.
func UnassignChannel(channel uint8) *Message {
	return New(IDUnassignChannel, channel)
}

// SetChannelID builds a SET_CHANNEL_ID command. A zero device number,
// device type or transmission type is a wildcard when searching.
func SetChannelID(channel uint8, deviceNumber uint16, deviceType, transmissionType uint8) *Message {
	var dev [2]byte
	binary.LittleEndian.PutUint16(dev[:], deviceNumber)
	return New(IDSetChannelID, channel, dev[0], dev[1], deviceType, transmissionType)
}

// SetChannelPeriod builds a CHANNEL_PERIOD command. period is in
// 1/32768 s units.
func SetChannelPeriod(channel uint8, period uint16) *Message {
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], period)
	return New(IDChannelPeriod, channel, p[0], p[1])
}

// SetSearchTimeout builds a SEARCH_TIMEOUT command. timeout is in 2.5 s
// units; SearchTimeoutInfinite disables the radio timeout.
func SetSearchTimeout(channel uint8, timeout uint8) *Message {
	return New(IDSearchTimeout, channel, timeout)
}

// SetRFFrequency builds a CHANNEL_RF_FREQUENCY command. frequency is the
// offset from 2400 MHz.
func SetRFFrequency(channel uint8, frequency uint8) *Message {
	return New(IDChannelRFFrequency, channel, frequency)
}

// OpenChannel builds an OPEN_CHANNEL command.
func OpenChannel(channel uint8) *Message {
	return New(IDOpenChannel, channel)
}

// CloseChannel builds a CLOSE_CHANNEL command.
func CloseChannel(channel uint8) *Message {
	return New(IDCloseChannel, channel)
}

// RequestMessage builds a REQUEST_MESSAGE command asking the radio to send
// the message with the given ID for a channel.
func RequestMessage(channel uint8, id ID) *Message {
	return New(IDRequestMessage, channel, byte(id))
}

// BroadcastData builds a BROADCAST_DATA message carrying page.
func BroadcastData(channel uint8, page [PageSize]byte) *Message {
	return New(IDBroadcastData, append([]byte{channel}, page[:]...)...)
}

// AcknowledgedData builds an ACKNOWLEDGED_DATA message carrying page.
func AcknowledgedData(channel uint8, page [PageSize]byte) *Message {
	return New(IDAcknowledgedData, append([]byte{channel}, page[:]...)...)
}

// ChannelResponse builds a CHANNEL_EVENT answering the command id.
// Radios send these; the builder exists for simulators and tests.
func ChannelResponse(channel uint8, id ID, code Code) *Message {
	return New(IDChannelEvent, channel, byte(id), byte(code))
}

// ChannelRFEvent builds a CHANNEL_EVENT carrying an RF event code.
func ChannelRFEvent(channel uint8, code Code) *Message {
	return New(IDChannelEvent, channel, rfEventMessageID, byte(code))
}

// StartupMessage builds the STARTUP_MESSAGE a radio sends after a reset.
func StartupMessage(reason uint8) *Message {
	return New(IDStartupMessage, reason)
}

// Capabilities builds a CAPABILITIES message.
func Capabilities(maxChannels, maxNetworks uint8) *Message {
	return New(IDCapabilities, maxChannels, maxNetworks, 0x00, 0x00)
}
