package socks

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// ConnectTimeout bounds both the TCP dial to the proxy and the SOCKS
// handshake that follows it.
const ConnectTimeout = 10 * time.Second

// Proxy describes the operator-supplied proxy an agent dials scan targets
// through. Protocol is "socks4" or "socks5"; Username/Password are only
// meaningful for socks5 and are omitted entirely for an unauthenticated
// proxy.
type Proxy struct {
	Host     string
	Port     int
	Username string
	Password string
	Protocol string
}

func (p Proxy) addr() string {
	return net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
}

// DialTCP establishes a TCP connection to destHost:destPort tunneled
// through the proxy. The destination is always forwarded as a hostname so
// that DNS resolution happens on the proxy's side of the network, never
// the agent's — the agent never learns or needs the target's resolved IP
// when a proxy is in play.
func DialTCP(ctx context.Context, proxy Proxy, destHost string, destPort int) (net.Conn, error) {
	if proxy.Protocol != "socks5" && proxy.Protocol != "socks4" {
		return nil, &ProxyError{Op: "connect", Message: fmt.Sprintf("unsupported proxy protocol %q", proxy.Protocol)}
	}

	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxy.addr())
	if err != nil {
		return nil, &NetworkError{Op: "dial proxy", Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	switch proxy.Protocol {
	case "socks5":
		err = handshakeSOCKS5(conn, proxy, destHost, destPort)
	case "socks4":
		err = handshakeSOCKS4(conn, destHost, destPort)
	default:
		conn.Close()
		return nil, &ProxyError{Op: "connect", Message: fmt.Sprintf("unsupported proxy protocol %q", proxy.Protocol)}
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

// HTTPSRequest dials destHost:destPort through the proxy and wraps the
// resulting tunnel in TLS with SNI set to destHost, as the proxy only ever
// sees the raw bytes of a post-handshake connection.
func HTTPSRequest(ctx context.Context, proxy Proxy, destHost string, destPort int) (*tls.Conn, error) {
	conn, err := DialTCP(ctx, proxy, destHost, destPort)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: destHost})
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(ConnectTimeout)
	}
	_ = tlsConn.SetDeadline(deadline)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &TLSError{Err: err}
	}
	_ = tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}

// ─── SOCKS5 (RFC 1928) ────────────────────────────────────────────────────

const (
	socks5Version    = 0x05
	socks5MethodNone = 0x00
	socks5MethodUser = 0x02
	socks5MethodNack = 0xFF
	socks5CmdConnect = 0x01
	socks5AtypDomain = 0x03
)

func handshakeSOCKS5(conn net.Conn, proxy Proxy, destHost string, destPort int) error {
	methods := []byte{socks5MethodNone}
	if proxy.Username != "" {
		methods = []byte{socks5MethodUser, socks5MethodNone}
	}

	greeting := append([]byte{socks5Version, byte(len(methods))}, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return &NetworkError{Op: "socks5 greeting", Err: err}
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return &NetworkError{Op: "socks5 greeting reply", Err: err}
	}
	if resp[0] != socks5Version {
		return &ProxyError{Op: "socks5 greeting", Message: "unexpected protocol version in reply"}
	}
	switch resp[1] {
	case socks5MethodNone:
		// no auth required
	case socks5MethodUser:
		if err := socks5Auth(conn, proxy); err != nil {
			return err
		}
	case socks5MethodNack:
		return &ProxyError{Op: "socks5 greeting", Message: "proxy rejected all offered auth methods"}
	default:
		return &ProxyError{Op: "socks5 greeting", Message: "proxy selected an unsupported auth method"}
	}

	if err := socks5Connect(conn, destHost, destPort); err != nil {
		return err
	}
	return nil
}

func socks5Auth(conn net.Conn, proxy Proxy) error {
	req := []byte{0x01, byte(len(proxy.Username))}
	req = append(req, proxy.Username...)
	req = append(req, byte(len(proxy.Password)))
	req = append(req, proxy.Password...)
	if _, err := conn.Write(req); err != nil {
		return &NetworkError{Op: "socks5 auth", Err: err}
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return &NetworkError{Op: "socks5 auth reply", Err: err}
	}
	if resp[1] != 0x00 {
		return &ProxyError{Op: "socks5 auth", Message: "proxy rejected credentials"}
	}
	return nil
}

func socks5Connect(conn net.Conn, destHost string, destPort int) error {
	if len(destHost) > 255 {
		return &ProxyError{Op: "socks5 connect", Message: "destination hostname too long"}
	}
	req := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AtypDomain, byte(len(destHost))}
	req = append(req, destHost...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, uint16(destPort))
	req = append(req, portBytes...)

	if _, err := conn.Write(req); err != nil {
		return &NetworkError{Op: "socks5 connect", Err: err}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return &NetworkError{Op: "socks5 connect reply", Err: err}
	}
	if header[0] != socks5Version {
		return &ProxyError{Op: "socks5 connect", Message: "unexpected protocol version in reply"}
	}
	if header[1] != 0x00 {
		return &ProxyError{Op: "socks5 connect", Message: socks5ReplyMessage(header[1])}
	}

	// Drain the bound address so the stream is positioned at the tunneled
	// payload; its value is never used since we dial by hostname.
	switch header[3] {
	case 0x01: // IPv4
		if _, err := io.ReadFull(conn, make([]byte, 4+2)); err != nil {
			return &NetworkError{Op: "socks5 connect bound addr", Err: err}
		}
	case 0x03: // domain
		l := make([]byte, 1)
		if _, err := io.ReadFull(conn, l); err != nil {
			return &NetworkError{Op: "socks5 connect bound addr", Err: err}
		}
		if _, err := io.ReadFull(conn, make([]byte, int(l[0])+2)); err != nil {
			return &NetworkError{Op: "socks5 connect bound addr", Err: err}
		}
	case 0x04: // IPv6
		if _, err := io.ReadFull(conn, make([]byte, 16+2)); err != nil {
			return &NetworkError{Op: "socks5 connect bound addr", Err: err}
		}
	default:
		return &ProxyError{Op: "socks5 connect", Message: "unsupported bound address type"}
	}
	return nil
}

func socks5ReplyMessage(code byte) string {
	switch code {
	case 0x01:
		return "general SOCKS server failure"
	case 0x02:
		return "connection not allowed by ruleset"
	case 0x03:
		return "network unreachable"
	case 0x04:
		return "host unreachable"
	case 0x05:
		return "connection refused"
	case 0x06:
		return "TTL expired"
	case 0x07:
		return "command not supported"
	case 0x08:
		return "address type not supported"
	default:
		return fmt.Sprintf("unknown reply code 0x%02x", code)
	}
}

// ─── SOCKS4a ──────────────────────────────────────────────────────────────

const (
	socks4Version    = 0x04
	socks4CmdConnect = 0x01
	socks4Granted    = 0x5A
)

// handshakeSOCKS4 speaks the SOCKS4a extension (invalid IP 0.0.0.x followed
// by the hostname), since the destination is always forwarded by name.
func handshakeSOCKS4(conn net.Conn, destHost string, destPort int) error {
	req := []byte{socks4Version, socks4CmdConnect}
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, uint16(destPort))
	req = append(req, portBytes...)
	req = append(req, 0x00, 0x00, 0x00, 0x01) // invalid IP signaling SOCKS4a
	req = append(req, 0x00)                   // empty USERID, null-terminated
	req = append(req, destHost...)
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		return &NetworkError{Op: "socks4 connect", Err: err}
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return &NetworkError{Op: "socks4 connect reply", Err: err}
	}
	if resp[1] != socks4Granted {
		return &ProxyError{Op: "socks4 connect", Message: socks4ReplyMessage(resp[1])}
	}
	return nil
}

func socks4ReplyMessage(code byte) string {
	switch code {
	case 0x5B:
		return "request rejected or failed"
	case 0x5C:
		return "proxy cannot connect to identd"
	case 0x5D:
		return "identd reported different user-id"
	default:
		return fmt.Sprintf("unknown reply code 0x%02x", code)
	}
}
