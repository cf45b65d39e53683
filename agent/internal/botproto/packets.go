// Package botproto implements the minimal slice of the Minecraft Java
// Edition play-state protocol a scan needs: logging in past the point a
// session-server join already authorized, reading the spawn position, and
// watching chat for auto-auth prompts and the plugin detector's
// declare-commands tree. It is deliberately not a full client — anything
// past "handshake, login, spawn" is out of scope.
package botproto

import (
	"reconmc/agent/internal/slp"
)

// Login-state packet IDs (server-bound and client-bound), pinned to the
// protocol version this package targets (see scan.ProtocolVersion).
const (
	PacketLoginStart         int32 = 0x00
	PacketLoginDisconnect    int32 = 0x00
	PacketEncryptionRequest  int32 = 0x01
	PacketLoginSuccess       int32 = 0x02
	PacketSetCompression     int32 = 0x03
)

// Play-state client-bound packet IDs this package recognizes. Anything
// else is read and discarded by the dispatch loop.
const (
	PacketJoinGame             int32 = 0x28
	PacketPlayerPositionLook   int32 = 0x3E
	PacketPlayerChatMessage    int32 = 0x33
	PacketSystemChatMessage    int32 = 0x64
	PacketDeclareCommands      int32 = 0x11
	PacketDisconnectPlay       int32 = 0x1A
	PacketKeepAliveClientbound int32 = 0x23
	PacketTabCompleteResponse  int32 = 0x0E
)

// PacketTeleportConfirm and PacketKeepAliveServerbound are the two
// server-bound acks the client must send back to avoid a timeout kick.
const (
	PacketTeleportConfirm      int32 = 0x00
	PacketKeepAliveServerbound int32 = 0x14
	PacketTabCompleteRequest   int32 = 0x09
)

// EncodeLoginStart builds the login-start packet. Every protocol version
// this package targets requires a player UUID field; when uuid is the zero
// value the spec's offline-mode UUID derivation is expected to have
// already filled it in upstream.
func EncodeLoginStart(username string, playerUUID [16]byte) []byte {
	body := slp.EncodeString(nil, username)
	body = append(body, playerUUID[:]...)
	return framePacket(PacketLoginStart, body)
}

// EncodeTeleportConfirm acks the server's Player Position And Look packet
// by echoing back its teleport ID, required before the server will send
// further world state.
func EncodeTeleportConfirm(teleportID int32) []byte {
	body := slp.EncodeVarInt(nil, teleportID)
	return framePacket(PacketTeleportConfirm, body)
}

// EncodeKeepAlive echoes a server keep-alive payload back so the
// connection survives long enough to finish auto-auth and plugin
// detection.
func EncodeKeepAlive(payload int64) []byte {
	body := slp.EncodeInt64(nil, payload)
	return framePacket(PacketKeepAliveServerbound, body)
}

// EncodeChatMessage builds a server-bound chat message packet (used to
// reply to /register or /login prompts during auto-auth).
func EncodeChatMessage(message string) []byte {
	body := slp.EncodeString(nil, message)
	return framePacket(0x05, body)
}

// EncodeTabComplete builds a server-bound tab-completion request, echoing
// transactionID back in the response so the caller can correlate it.
func EncodeTabComplete(transactionID int32, text string) []byte {
	body := slp.EncodeVarInt(nil, transactionID)
	body = slp.EncodeString(body, text)
	return framePacket(PacketTabCompleteRequest, body)
}

func framePacket(packetID int32, body []byte) []byte {
	inner := slp.EncodeVarInt(nil, packetID)
	inner = append(inner, body...)
	out := slp.EncodeVarInt(nil, int32(len(inner)))
	return append(out, inner...)
}
