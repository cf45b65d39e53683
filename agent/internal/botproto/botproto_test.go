package botproto

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconmc/agent/internal/slp"
)

func encodeNode(flags byte, children []int32, redirect *int32, name string, parserID string, minMaxFlags *byte, minMaxWidth int) []byte {
	var buf []byte
	buf = append(buf, flags)
	buf = slp.EncodeVarInt(buf, int32(len(children)))
	for _, c := range children {
		buf = slp.EncodeVarInt(buf, c)
	}
	if redirect != nil {
		buf = slp.EncodeVarInt(buf, *redirect)
	}
	if name != "" {
		buf = slp.EncodeString(buf, name)
	}
	if parserID != "" {
		buf = slp.EncodeString(buf, parserID)
		if minMaxFlags != nil {
			buf = append(buf, *minMaxFlags)
			if *minMaxFlags&0x01 != 0 {
				buf = append(buf, make([]byte, minMaxWidth)...)
			}
			if *minMaxFlags&0x02 != 0 {
				buf = append(buf, make([]byte, minMaxWidth)...)
			}
		}
	}
	return buf
}

func TestParseDeclareCommandsLiteralNodes(t *testing.T) {
	var body []byte
	body = slp.EncodeVarInt(body, 3)
	body = append(body, encodeNode(nodeTypeRoot, []int32{1, 2}, nil, "", "", nil, 0)...)
	body = append(body, encodeNode(nodeTypeLiteral, nil, nil, "plugins", "", nil, 0)...)
	body = append(body, encodeNode(nodeTypeLiteral, nil, nil, "essentials:help", "", nil, 0)...)

	nodes, err := ParseDeclareCommands(body)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "plugins", nodes[0].Name)
	assert.Equal(t, "essentials:help", nodes[1].Name)
}

func TestParseDeclareCommandsArgumentWithMinMax(t *testing.T) {
	flags := byte(0x03) // has min + has max
	var body []byte
	body = slp.EncodeVarInt(body, 2)
	body = append(body, encodeNode(nodeTypeRoot, []int32{1}, nil, "", "", nil, 0)...)
	body = append(body, encodeNode(nodeTypeArgument, nil, nil, "amount", "brigadier:integer", &flags, 4)...)

	nodes, err := ParseDeclareCommands(body)
	require.NoError(t, err)
	assert.Empty(t, nodes) // argument nodes aren't literal
}

func TestExtractPluginIDs(t *testing.T) {
	nodes := []CommandNode{
		{Name: "essentials:help", Literal: true},
		{Name: "worldedit:wand", Literal: true},
		{Name: "help", Literal: true},
	}
	ids := ExtractPluginIDs(nodes)
	assert.ElementsMatch(t, []string{"essentials", "worldedit"}, ids)
}

func TestFindVersionCommandAlias(t *testing.T) {
	nodes := []CommandNode{{Name: "ver", Literal: true}, {Name: "foo", Literal: true}}
	name, ok := FindVersionCommand(nodes)
	require.True(t, ok)
	assert.Equal(t, "ver", name)
}

func TestFindVersionCommandNamespaced(t *testing.T) {
	nodes := []CommandNode{{Name: "bukkit:version", Literal: true}}
	name, ok := FindVersionCommand(nodes)
	require.True(t, ok)
	assert.Equal(t, "bukkit:version", name)
}

func TestFindVersionCommandNone(t *testing.T) {
	nodes := []CommandNode{{Name: "spawn", Literal: true}}
	_, ok := FindVersionCommand(nodes)
	assert.False(t, ok)
}

func encodePositionBody(x, y, z float64, teleportID int32) []byte {
	var body []byte
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(x))
	body = append(body, buf...)
	binary.BigEndian.PutUint64(buf, math.Float64bits(y))
	body = append(body, buf...)
	binary.BigEndian.PutUint64(buf, math.Float64bits(z))
	body = append(body, buf...)
	body = append(body, make([]byte, 4+4+1)...) // yaw, pitch, flags
	body = slp.EncodeVarInt(body, teleportID)
	return body
}

func TestParsePlayerPositionLook(t *testing.T) {
	body := encodePositionBody(1.5, 64.0, -2.25, 7)
	pos, teleportID, err := parsePlayerPositionLook(body)
	require.NoError(t, err)
	assert.Equal(t, 1.5, pos.X)
	assert.Equal(t, 64.0, pos.Y)
	assert.Equal(t, -2.25, pos.Z)
	assert.Equal(t, int32(7), teleportID)
}

func TestReadJSONString(t *testing.T) {
	body := slp.EncodeString(nil, `{"text":"hello"}`)
	s, err := readJSONString(body)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"hello"}`, s)
}

// pipeConn returns two connected in-memory net.Conn endpoints for testing
// the Reader against a real framing without a real socket.
func pipeConn() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestReaderUncompressed(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write(EncodeTeleportConfirm(42))
	}()

	r := NewReader(client)
	id, body, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, PacketTeleportConfirm, id)
	n, _, err := decodeVarIntFromBytes(body)
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)
}

func TestReaderCompressedBelowThreshold(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		inner := slp.EncodeVarInt(nil, PacketTeleportConfirm)
		inner = append(inner, slp.EncodeVarInt(nil, 9)...)
		frame := slp.EncodeVarInt(nil, 0) // dataLength 0 == uncompressed passthrough
		frame = append(frame, inner...)
		out := slp.EncodeVarInt(nil, int32(len(frame)))
		out = append(out, frame...)
		server.Write(out)
	}()

	r := NewReader(client)
	r.EnableCompression()
	id, _, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, PacketTeleportConfirm, id)
}

func TestReaderCompressedAboveThreshold(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	go func() {
		inner := slp.EncodeVarInt(nil, PacketTeleportConfirm)
		inner = append(inner, slp.EncodeVarInt(nil, 99)...)

		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		zw.Write(inner)
		zw.Close()

		frame := slp.EncodeVarInt(nil, int32(len(inner)))
		frame = append(frame, compressed.Bytes()...)
		out := slp.EncodeVarInt(nil, int32(len(frame)))
		out = append(out, frame...)
		server.Write(out)
	}()

	r := NewReader(client)
	r.EnableCompression()
	id, body, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, PacketTeleportConfirm, id)
	n, _, err := decodeVarIntFromBytes(body)
	require.NoError(t, err)
	assert.Equal(t, int32(99), n)
}
