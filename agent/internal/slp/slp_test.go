package slp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 2, 127, 128, 255, 300, 2097151, 2147483647, -1, -2147483648}
	for _, c := range cases {
		buf := EncodeVarInt(nil, c)
		got, err := DecodeVarInt(&byteReader{b: buf})
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestDecodeVarIntTooBig(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	_, err := DecodeVarInt(&byteReader{b: buf})
	assert.ErrorIs(t, err, ErrVarIntTooBig)
}

func TestEncodeHandshakeStructure(t *testing.T) {
	pkt := EncodeHandshake(760, "mc.example.com", 25565)
	dec := NewDecoder()
	dec.Feed(pkt)
	p, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, PacketHandshake, p.ID)
}

func TestDecoderPartialReads(t *testing.T) {
	pkt := EncodeStatusRequest()
	dec := NewDecoder()

	dec.Feed(pkt[:1])
	_, err := dec.Next()
	assert.ErrorIs(t, err, ErrIncomplete)

	dec.Feed(pkt[1:])
	p, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, PacketStatusRequest, p.ID)
}

func TestDecoderMultiplePacketsInOneFeed(t *testing.T) {
	dec := NewDecoder()
	dec.Feed(EncodeStatusRequest())
	dec.Feed(EncodePing(1234))

	p1, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, PacketStatusRequest, p1.ID)

	p2, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, PacketPing, p2.ID)
	payload, err := DecodePongBody(p2.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), payload)
}

func TestDecoderFrameTooLarge(t *testing.T) {
	dec := NewDecoder()
	oversized := EncodeVarInt(nil, MaxFrameSize+1)
	dec.Feed(oversized)
	_, err := dec.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestValidateStatusJSONBasic(t *testing.T) {
	raw := []byte(`{"version":{"name":"1.20.1","protocol":763},"players":{"max":20,"online":3,"sample":[{"name":"Notch","id":"069a79f4-44e9-4726-a5be-fca90e38aaf5"}]},"description":{"text":"A Minecraft Server"}}`)
	out, err := ValidateStatusJSON(raw)
	require.NoError(t, err)
	assert.Contains(t, string(out), "A Minecraft Server")
}

func TestValidateStatusJSONRejectsOversize(t *testing.T) {
	big := strings.Repeat("a", MaxJSONSize+1)
	raw := []byte(`{"description":"` + big + `"}`)
	_, err := ValidateStatusJSON(raw)
	assert.ErrorIs(t, err, ErrJSONTooLarge)
}

func TestValidateStatusJSONRejectsDeepNesting(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < MaxJSONDepth+10; i++ {
		sb.WriteString(`{"a":`)
	}
	sb.WriteString("1")
	for i := 0; i < MaxJSONDepth+10; i++ {
		sb.WriteString("}")
	}
	_, err := ValidateStatusJSON([]byte(sb.String()))
	assert.ErrorIs(t, err, ErrJSONTooDeep)
}

func TestValidateStatusJSONClampsProtocolAndPlayers(t *testing.T) {
	raw := []byte(`{"version":{"protocol":999999},"players":{"online":-5,"max":5000000}}`)
	out, err := ValidateStatusJSON(raw)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"protocol":9999`)
	assert.Contains(t, string(out), `"max":1000000`)
}

func TestValidateStatusJSONDropsMalformedSampleEntries(t *testing.T) {
	raw := []byte(`{"players":{"sample":[{"name":"ok","id":"069a79f4-44e9-4726-a5be-fca90e38aaf5"},{"name":"bad","id":"not-a-uuid"}]}}`)
	out, err := ValidateStatusJSON(raw)
	require.NoError(t, err)
	assert.Contains(t, string(out), "ok")
	assert.NotContains(t, string(out), "bad")
}

func TestValidateStatusJSONEscapesAndStripsNUL(t *testing.T) {
	raw := []byte("{\"description\":{\"text\":\"<script>alert(1)</script>\\u0000\"}}")
	out, err := ValidateStatusJSON(raw)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
	assert.NotContains(t, string(out), "\x00")
}

func TestValidateStatusJSONRejectsTruncated(t *testing.T) {
	_, err := ValidateStatusJSON([]byte(`{"version":`))
	assert.Error(t, err)
}

// byteReader adapts a []byte into an io.ByteReader for DecodeVarInt tests.
type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, errEOF
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

var errEOF = &eofError{}

type eofError struct{}

func (e *eofError) Error() string { return "EOF" }
