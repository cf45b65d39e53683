package botproto

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconmc/agent/internal/slp"
)

// fakeServer drives the server side of a net.Pipe connection, replying to
// whatever login/play packets the test needs.
func fakeServer(t *testing.T, server net.Conn, script func(r *Reader, w net.Conn)) {
	t.Helper()
	go func() {
		r := NewReader(server)
		script(r, server)
	}()
}

func readLoginPackets(t *testing.T, r *Reader) (int32, []byte) {
	t.Helper()
	id, body, err := r.ReadPacket()
	require.NoError(t, err)
	return id, body
}

func TestConnectSucceeds(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeServer(t, server, func(r *Reader, w net.Conn) {
		readLoginPackets(t, r) // handshake
		readLoginPackets(t, r) // login start
		w.Write(framePacket(PacketLoginSuccess, []byte{0x00}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, client, "mc.example.com", 25565, 763, "bot", [16]byte{})
	require.NoError(t, err)
	defer c.Close()
}

func TestConnectEncryptionRequestIsHardError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeServer(t, server, func(r *Reader, w net.Conn) {
		readLoginPackets(t, r)
		readLoginPackets(t, r)
		w.Write(framePacket(PacketEncryptionRequest, []byte{}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, client, "mc.example.com", 25565, 763, "bot", [16]byte{})
	assert.Error(t, err)
}

func TestClientWaitForSpawn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeServer(t, server, func(r *Reader, w net.Conn) {
		readLoginPackets(t, r)
		readLoginPackets(t, r)
		w.Write(framePacket(PacketLoginSuccess, []byte{0x00}))

		body := encodePositionBody(10, 65, -5, 3)
		w.Write(framePacket(PacketPlayerPositionLook, body))

		buf := make([]byte, 16)
		w.Read(buf) // teleport confirm
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, client, "mc.example.com", 25565, 763, "bot", [16]byte{})
	require.NoError(t, err)
	defer c.Close()

	pos, err := c.WaitForSpawn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.X)
}

func TestClientTabComplete(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeServer(t, server, func(r *Reader, w net.Conn) {
		readLoginPackets(t, r)
		readLoginPackets(t, r)
		w.Write(framePacket(PacketLoginSuccess, []byte{0x00}))

		id, _ := readLoginPackets(t, r)
		assert.Equal(t, PacketTabCompleteRequest, id)

		var body []byte
		body = slp.EncodeVarInt(body, 1) // txn id (first request)
		body = slp.EncodeVarInt(body, 0) // start
		body = slp.EncodeVarInt(body, 0) // length
		body = slp.EncodeVarInt(body, 1) // count
		body = slp.EncodeString(body, "/sethome")
		body = append(body, 0x00) // has no tooltip
		w.Write(framePacket(PacketTabCompleteResponse, body))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, client, "mc.example.com", 25565, 763, "bot", [16]byte{})
	require.NoError(t, err)
	defer c.Close()

	matches, err := c.TabComplete(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/sethome"}, matches)
}

func TestClientSendChatCommand(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fakeServer(t, server, func(r *Reader, w net.Conn) {
		readLoginPackets(t, r)
		readLoginPackets(t, r)
		w.Write(framePacket(PacketLoginSuccess, []byte{0x00}))

		id, _ := readLoginPackets(t, r)
		assert.Equal(t, int32(0x05), id) // chat message

		chatBody := slp.EncodeString(nil, "Plugins (1): EssentialsX")
		w.Write(framePacket(PacketSystemChatMessage, chatBody))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, client, "mc.example.com", 25565, 763, "bot", [16]byte{})
	require.NoError(t, err)
	defer c.Close()

	out, err := c.SendChatCommand(ctx, "/plugins", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, out, "EssentialsX")
}
