package slp

import (
	"bytes"
	"errors"
)

// ErrIncomplete is returned by Decoder.Next when the buffered bytes do not
// yet contain a full frame. Callers should Feed more data and retry; it is
// never a protocol violation on its own.
var ErrIncomplete = errors.New("slp: incomplete frame")

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameSize, before any of its body is buffered. This bounds memory use
// against a malicious or broken server advertising an enormous frame.
var ErrFrameTooLarge = errors.New("slp: frame exceeds maximum size")

// MaxFrameSize caps a single framed packet's body, independent of the
// tighter MaxJSONSize cap applied to the status JSON payload itself.
const MaxFrameSize = 2 * 1024 * 1024

// Packet is one decoded, de-framed protocol packet: the packet ID and its
// raw body, with the outer length prefix already stripped.
type Packet struct {
	ID   int32
	Data []byte
}

// Decoder accumulates bytes from a series of partial TCP reads and yields
// complete packets as they become available. It never blocks and never
// reads from a connection itself — callers own the I/O loop and Feed it
// whatever arrived.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns an empty streaming decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf.Write(b)
}

// Next attempts to decode one complete packet from the buffered bytes. It
// returns ErrIncomplete if the buffer does not yet hold a full frame,
// leaving the buffer untouched so a later Feed+Next can retry. On success
// the consumed bytes are removed from the buffer.
func (d *Decoder) Next() (*Packet, error) {
	raw := d.buf.Bytes()

	frameLen, lenSize, ok := peekVarInt(raw)
	if !ok {
		if lenSize >= 5 {
			return nil, ErrVarIntTooBig
		}
		return nil, ErrIncomplete
	}
	if frameLen < 0 || int64(frameLen) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	total := lenSize + int(frameLen)
	if len(raw) < total {
		return nil, ErrIncomplete
	}

	frame := raw[lenSize:total]
	packetID, idSize, ok := peekVarInt(frame)
	if !ok {
		return nil, errors.New("slp: frame does not hold a complete packet id")
	}

	pkt := &Packet{
		ID:   packetID,
		Data: append([]byte(nil), frame[idSize:]...),
	}

	d.buf.Next(total)
	return pkt, nil
}

// peekVarInt decodes a VarInt from the start of b without requiring an
// io.ByteReader, so the decoder can try speculatively against whatever is
// currently buffered. ok is false if b doesn't yet contain a complete
// VarInt; in that case n is the number of bytes examined so far, useful for
// detecting a too-long encoding before more data ever arrives.
func peekVarInt(b []byte) (value int32, n int, ok bool) {
	var v uint32
	var pos uint
	for i := 0; i < len(b); i++ {
		byt := b[i]
		v |= uint32(byt&varIntSegmentBits) << pos
		if byt&varIntContinueBit == 0 {
			return int32(v), i + 1, true
		}
		pos += 7
		if pos >= 32 {
			return 0, i + 1, false
		}
	}
	return 0, len(b), false
}

// DecodeStatusResponseBody extracts the VarInt-length-prefixed JSON string
// from a status response packet's body, returning the raw JSON bytes
// without validating them — validation is ValidateStatusJSON's job.
func DecodeStatusResponseBody(data []byte) ([]byte, error) {
	strLen, n, ok := peekVarInt(data)
	if !ok {
		return nil, ErrIncomplete
	}
	if strLen < 0 || int(strLen) > len(data)-n {
		return nil, errors.New("slp: status string length exceeds packet body")
	}
	return data[n : n+int(strLen)], nil
}

// DecodePongBody extracts the echoed payload from a pong packet's body.
func DecodePongBody(data []byte) (int64, error) {
	if len(data) < 8 {
		return 0, errors.New("slp: pong body shorter than 8 bytes")
	}
	return DecodeInt64(bytes.NewReader(data[:8]))
}
