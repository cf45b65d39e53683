package socks

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSOCKS5 runs a minimal in-process SOCKS5 server accepting exactly one
// connection, replying success to the greeting and CONNECT request, and
// then closes. Good enough to exercise DialTCP's handshake logic without a
// real proxy.
func fakeSOCKS5(t *testing.T, requireAuth bool) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		greeting := make([]byte, 2)
		if _, err := io.ReadFull(conn, greeting); err != nil {
			return
		}
		methods := make([]byte, greeting[1])
		if _, err := io.ReadFull(conn, methods); err != nil {
			return
		}

		if requireAuth {
			conn.Write([]byte{socks5Version, socks5MethodUser})
			authHeader := make([]byte, 2)
			io.ReadFull(conn, authHeader)
			uname := make([]byte, authHeader[1])
			io.ReadFull(conn, uname)
			plen := make([]byte, 1)
			io.ReadFull(conn, plen)
			pass := make([]byte, plen[0])
			io.ReadFull(conn, pass)
			conn.Write([]byte{0x01, 0x00})
		} else {
			conn.Write([]byte{socks5Version, socks5MethodNone})
		}

		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		hostLen := make([]byte, 1)
		io.ReadFull(conn, hostLen)
		io.ReadFull(conn, make([]byte, int(hostLen[0])+2))

		reply := []byte{socks5Version, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
		conn.Write(reply)

		buf := make([]byte, 64)
		conn.Read(buf)
	}()

	return ln
}

// fakeSOCKS4 runs a minimal in-process SOCKS4a server accepting exactly one
// connection and replying request-granted.
func fakeSOCKS4(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, 8)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		// drain null-terminated USERID
		readUntilNUL(conn)
		// drain null-terminated SOCKS4a hostname
		readUntilNUL(conn)

		conn.Write([]byte{0x00, socks4Granted, 0, 0, 0, 0, 0, 0})

		buf := make([]byte, 64)
		conn.Read(buf)
	}()

	return ln
}

func readUntilNUL(r io.Reader) {
	b := make([]byte, 1)
	for {
		if _, err := r.Read(b); err != nil || b[0] == 0x00 {
			return
		}
	}
}

func proxyFromAddr(t *testing.T, addr net.Addr, protocol string) Proxy {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Proxy{Host: host, Port: port, Protocol: protocol}
}

func TestDialTCPSOCKS5NoAuth(t *testing.T) {
	ln := fakeSOCKS5(t, false)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := DialTCP(ctx, proxyFromAddr(t, ln.Addr(), "socks5"), "mc.example.com", 25565)
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialTCPSOCKS5WithAuth(t *testing.T) {
	ln := fakeSOCKS5(t, true)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	proxy := proxyFromAddr(t, ln.Addr(), "socks5")
	proxy.Username = "u"
	proxy.Password = "p"

	conn, err := DialTCP(ctx, proxy, "mc.example.com", 25565)
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialTCPSOCKS4(t *testing.T) {
	ln := fakeSOCKS4(t)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := DialTCP(ctx, proxyFromAddr(t, ln.Addr(), "socks4"), "mc.example.com", 25565)
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialTCPUnsupportedProtocol(t *testing.T) {
	_, err := DialTCP(context.Background(), Proxy{Host: "127.0.0.1", Port: 1, Protocol: "socks9"}, "x", 1)
	require.Error(t, err)
	var perr *ProxyError
	assert.ErrorAs(t, err, &perr)
}

func TestSocks4ReplyMessage(t *testing.T) {
	assert.Contains(t, socks4ReplyMessage(0x5B), "rejected")
}

func TestSocks5ReplyMessage(t *testing.T) {
	assert.Contains(t, socks5ReplyMessage(0x05), "refused")
}
