package slp

// Packet IDs used by the handshake/status/ping subset of the protocol.
const (
	PacketHandshake     int32 = 0x00
	PacketStatusRequest int32 = 0x00
	PacketStatusResponse int32 = 0x00
	PacketPing          int32 = 0x01
	PacketPong          int32 = 0x01
)

// NextStateStatus tells the server to move to the status sub-protocol after
// the handshake; NextStateLogin would move to login, which this package
// never speaks.
const NextStateStatus int32 = 1

// frame wraps a packet ID and body with the outer VarInt length prefix the
// protocol requires on every packet.
func frame(packetID int32, body []byte) []byte {
	inner := EncodeVarInt(nil, packetID)
	inner = append(inner, body...)
	out := EncodeVarInt(nil, int32(len(inner)))
	return append(out, inner...)
}

// EncodeHandshake builds the handshake packet that precedes a status
// request: protocol version, the server address as dialed (not redirected
// through any SRV target), the port, and the next-state selector.
func EncodeHandshake(protocolVersion int32, serverAddress string, port uint16) []byte {
	var body []byte
	body = EncodeVarInt(body, protocolVersion)
	body = EncodeString(body, serverAddress)
	body = EncodeUint16(body, port)
	body = EncodeVarInt(body, NextStateStatus)
	return frame(PacketHandshake, body)
}

// EncodeStatusRequest builds the (empty-bodied) status request packet.
func EncodeStatusRequest() []byte {
	return frame(PacketStatusRequest, nil)
}

// EncodePing builds the ping packet carrying an arbitrary payload the
// server is expected to echo back unchanged in its pong.
func EncodePing(payload int64) []byte {
	var body []byte
	body = EncodeInt64(body, payload)
	return frame(PacketPing, body)
}
