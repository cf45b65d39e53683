package botproto

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"net"

	"reconmc/agent/internal/slp"
)

// Reader reads framed, optionally zlib-compressed packets off a live game
// connection. Unlike slp.Decoder it reads blocking off the socket directly
// — a bot session is a long-lived connection, not a series of opportunistic
// partial reads, so there is no benefit to buffering speculatively.
type Reader struct {
	br          *bufio.Reader
	compression bool
}

// NewReader wraps conn for packet-level reads.
func NewReader(conn net.Conn) *Reader {
	return &Reader{br: bufio.NewReaderSize(conn, 4096)}
}

// EnableCompression switches the reader into compressed-frame mode, called
// once a Set Compression packet arrives.
func (r *Reader) EnableCompression() {
	r.compression = true
}

// ReadPacket blocks until one full packet is available, returning its ID
// and de-framed (and decompressed, if enabled) body.
func (r *Reader) ReadPacket() (int32, []byte, error) {
	frameLen, err := slp.DecodeVarInt(r.br)
	if err != nil {
		return 0, nil, fmt.Errorf("botproto: reading frame length: %w", err)
	}
	if frameLen < 0 || frameLen > int32(slp.MaxFrameSize) {
		return 0, nil, fmt.Errorf("botproto: frame length %d exceeds maximum", frameLen)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(r.br, frame); err != nil {
		return 0, nil, fmt.Errorf("botproto: reading frame body: %w", err)
	}

	payload, err := r.decompress(frame)
	if err != nil {
		return 0, nil, err
	}

	pr := bytes.NewReader(payload)
	packetID, err := slp.DecodeVarInt(pr)
	if err != nil {
		return 0, nil, fmt.Errorf("botproto: reading packet id: %w", err)
	}
	body := payload[len(payload)-pr.Len():]
	return packetID, body, nil
}

func (r *Reader) decompress(frame []byte) ([]byte, error) {
	if !r.compression {
		return frame, nil
	}

	fr := bytes.NewReader(frame)
	dataLength, err := slp.DecodeVarInt(fr)
	if err != nil {
		return nil, fmt.Errorf("botproto: reading compressed data length: %w", err)
	}
	rest := frame[len(frame)-fr.Len():]

	if dataLength == 0 {
		// below the server's compression threshold: sent uncompressed.
		return rest, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("botproto: opening zlib reader: %w", err)
	}
	defer zr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(zr, int64(slp.MaxFrameSize)))
	if err != nil {
		return nil, fmt.Errorf("botproto: decompressing frame: %w", err)
	}
	return decompressed, nil
}
