package botproto

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"reconmc/agent/internal/slp"
	"reconmc/shared/types"
)

// LoginTimeout bounds how long the login handshake (start through spawn)
// is allowed to take before the connect attempt is abandoned.
const LoginTimeout = 15 * time.Second

// defaultTabCompleteTimeout bounds how long TabComplete waits for a
// response before treating the probe as empty.
const defaultTabCompleteTimeout = 2 * time.Second

type tabRequest struct {
	id    int32
	text  string
	reply chan []string
}

type chatRequest struct {
	command string
	window  time.Duration
	reply   chan string
}

// Client is a connected, logged-in bot session. Once Connect returns, a
// single background goroutine owns the connection's read loop and
// dispatches both passive events (spawn, chat, keep-alive) and the
// request/response exchanges (tab-complete, chat commands) other
// goroutines drive through its exported methods.
type Client struct {
	conn   net.Conn
	reader *Reader

	tabReqs  chan tabRequest
	chatReqs chan chatRequest
	chatCh   chan string
	spawnCh  chan types.Position

	mu            sync.Mutex
	spawnPosition *types.Position
	commands      []CommandNode

	done    chan struct{}
	runErr  error
	txnSeq  int32
}

// Connect performs the handshake, login-start, and login-phase packet loop
// (Set Compression / Login Success / Disconnect / Encryption Request),
// then starts the play-phase dispatch loop and returns a ready Client.
// Encryption Request is always a hard error: accounts are expected to
// already be authorized against the session server before this dial, so a
// server demanding encryption is either online-mode-without-a-prior-join
// (a misconfiguration the scan can't recover from) or actively hostile.
func Connect(ctx context.Context, conn net.Conn, serverAddress string, port uint16, protocolVersion int32, username string, playerUUID [16]byte) (*Client, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(LoginTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(encodeHandshakeLogin(protocolVersion, serverAddress, port)); err != nil {
		return nil, fmt.Errorf("botproto: writing handshake: %w", err)
	}
	if _, err := conn.Write(EncodeLoginStart(username, playerUUID)); err != nil {
		return nil, fmt.Errorf("botproto: writing login start: %w", err)
	}

	r := NewReader(conn)
	for {
		id, body, err := r.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("botproto: login phase: %w", err)
		}

		switch id {
		case PacketSetCompression:
			r.EnableCompression()
		case PacketEncryptionRequest:
			return nil, &types.ScanError{Kind: types.KindProtocol, Message: "server requires encryption, unsupported"}
		case PacketLoginDisconnect:
			reason, _ := readJSONString(body)
			return nil, &types.ScanError{Kind: types.KindProtocol, Message: "disconnected during login: " + reason}
		case PacketLoginSuccess:
			_ = conn.SetDeadline(time.Time{})
			c := &Client{
				conn:     conn,
				reader:   r,
				tabReqs:  make(chan tabRequest),
				chatReqs: make(chan chatRequest),
				chatCh:   make(chan string, 32),
				spawnCh:  make(chan types.Position, 1),
				done:     make(chan struct{}),
			}
			go c.loop(ctx)
			return c, nil
		default:
			// Unrecognized login-phase packet; ignore and keep reading.
		}
	}
}

type rawPacket struct {
	id   int32
	body []byte
}

// loop owns the connection for its lifetime: one goroutine reads packets
// off the wire and feeds them here, while this select body is the only
// place that ever writes to conn, so request/response exchanges (tab
// completion, chat commands) can interleave safely with passive dispatch.
func (c *Client) loop(ctx context.Context) {
	defer close(c.done)

	packets := make(chan rawPacket)
	readErrs := make(chan error, 1)
	go func() {
		for {
			id, body, err := c.reader.ReadPacket()
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case packets <- rawPacket{id, body}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var pendingTab *tabRequest
	var tabTimer *time.Timer
	var pendingChat *chatRequest
	var chatLines []string
	var chatTimer *time.Timer

	timerC := func(t *time.Timer) <-chan time.Time {
		if t == nil {
			return nil
		}
		return t.C
	}

	for {
		select {
		case <-ctx.Done():
			c.runErr = ctx.Err()
			return

		case err := <-readErrs:
			c.runErr = err
			if pendingTab != nil {
				pendingTab.reply <- nil
			}
			if pendingChat != nil {
				pendingChat.reply <- strings.Join(chatLines, "\n")
			}
			return

		case p := <-packets:
			switch p.id {
			case PacketPlayerPositionLook:
				pos, teleportID, err := parsePlayerPositionLook(p.body)
				if err == nil {
					c.mu.Lock()
					c.spawnPosition = &pos
					c.mu.Unlock()
					select {
					case c.spawnCh <- pos:
					default:
					}
					_, _ = c.conn.Write(EncodeTeleportConfirm(teleportID))
				}
			case PacketSystemChatMessage, PacketPlayerChatMessage:
				if text, err := readJSONString(p.body); err == nil {
					select {
					case c.chatCh <- text:
					default:
					}
					if pendingChat != nil {
						chatLines = append(chatLines, text)
					}
				}
			case PacketDeclareCommands:
				nodes, _ := ParseDeclareCommands(p.body)
				c.mu.Lock()
				c.commands = nodes
				c.mu.Unlock()
			case PacketKeepAliveClientbound:
				if payload, err := readInt64(p.body); err == nil {
					_, _ = c.conn.Write(EncodeKeepAlive(payload))
				}
			case PacketTabCompleteResponse:
				txnID, matches, err := parseTabCompleteResponse(p.body)
				if err == nil && pendingTab != nil && txnID == pendingTab.id {
					pendingTab.reply <- matches
					pendingTab = nil
					tabTimer = nil
				}
			case PacketDisconnectPlay:
				reason, _ := readJSONString(p.body)
				c.runErr = &types.ScanError{Kind: types.KindProtocol, Message: "kicked: " + reason}
				if pendingTab != nil {
					pendingTab.reply <- nil
				}
				if pendingChat != nil {
					pendingChat.reply <- strings.Join(chatLines, "\n")
				}
				return
			}

		case req := <-c.tabReqs:
			c.txnSeq++
			req.id = c.txnSeq
			pendingTab = &req
			_, _ = c.conn.Write(EncodeTabComplete(req.id, req.text))
			tabTimer = time.NewTimer(defaultTabCompleteTimeout)

		case req := <-c.chatReqs:
			pendingChat = &req
			chatLines = nil
			_, _ = c.conn.Write(EncodeChatMessage(req.command))
			chatTimer = time.NewTimer(req.window)

		case <-timerC(tabTimer):
			if pendingTab != nil {
				pendingTab.reply <- nil
				pendingTab = nil
			}
			tabTimer = nil

		case <-timerC(chatTimer):
			if pendingChat != nil {
				pendingChat.reply <- strings.Join(chatLines, "\n")
				pendingChat = nil
			}
			chatTimer = nil
		}
	}
}

// WaitForSpawn blocks until the first Player Position And Look packet
// arrives, the connection ends, or ctx is cancelled.
func (c *Client) WaitForSpawn(ctx context.Context) (types.Position, error) {
	select {
	case pos := <-c.spawnCh:
		return pos, nil
	case <-c.done:
		if c.runErr != nil {
			return types.Position{}, c.runErr
		}
		return types.Position{}, errors.New("botproto: connection closed before spawn")
	case <-ctx.Done():
		return types.Position{}, ctx.Err()
	}
}

// TabComplete requests suggestions for the given partial command text.
func (c *Client) TabComplete(ctx context.Context, text string) ([]string, error) {
	reply := make(chan []string, 1)
	select {
	case c.tabReqs <- tabRequest{text: text, reply: reply}:
	case <-c.done:
		return nil, errors.New("botproto: session closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendChatCommand sends a chat command and returns whatever chat lines
// arrived within window, joined by newline — used for /plugins,
// /bukkit:plugins, and auto-auth /register or /login replies.
func (c *Client) SendChatCommand(ctx context.Context, command string, window time.Duration) (string, error) {
	reply := make(chan string, 1)
	select {
	case c.chatReqs <- chatRequest{command: command, window: window, reply: reply}:
	case <-c.done:
		return "", errors.New("botproto: session closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Chat returns the channel of every system/player chat line seen, for
// callers (auto-auth) that want to watch passively rather than issue a
// command and wait.
func (c *Client) Chat() <-chan string {
	return c.chatCh
}

// SpawnPosition returns the last recorded spawn position, if any.
func (c *Client) SpawnPosition() *types.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnPosition
}

// Commands returns the declare_commands node set captured during login,
// if the server ever sent one.
func (c *Client) Commands() []CommandNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commands
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func encodeHandshakeLogin(protocolVersion int32, serverAddress string, port uint16) []byte {
	var body []byte
	body = slp.EncodeVarInt(body, protocolVersion)
	body = slp.EncodeString(body, serverAddress)
	body = slp.EncodeUint16(body, port)
	body = slp.EncodeVarInt(body, 2) // next state: login
	return framePacket(slp.PacketHandshake, body)
}

// parsePlayerPositionLook decodes the fixed x/y/z float64 + yaw/pitch
// float32 + flags byte + teleport-id VarInt shape.
func parsePlayerPositionLook(body []byte) (types.Position, int32, error) {
	if len(body) < 8*3+4*2+1 {
		return types.Position{}, 0, errors.New("botproto: player position packet too short")
	}
	x := math.Float64frombits(binary.BigEndian.Uint64(body[0:8]))
	y := math.Float64frombits(binary.BigEndian.Uint64(body[8:16]))
	z := math.Float64frombits(binary.BigEndian.Uint64(body[16:24]))

	rest := body[24+4+4+1:]
	teleportID, _, err := decodeVarIntFromBytes(rest)
	if err != nil {
		return types.Position{}, 0, err
	}
	return types.Position{X: x, Y: y, Z: z}, teleportID, nil
}

// parseTabCompleteResponse decodes transactionID, start, length, count,
// and the list of suggestion strings (ignoring each entry's optional
// tooltip component).
func parseTabCompleteResponse(body []byte) (int32, []string, error) {
	pos := 0
	readVarInt := func() (int32, error) {
		v, n, err := decodeVarIntFromBytes(body[pos:])
		if err != nil {
			return 0, err
		}
		pos += n
		return v, nil
	}

	txnID, err := readVarInt()
	if err != nil {
		return 0, nil, err
	}
	if _, err := readVarInt(); err != nil { // start
		return 0, nil, err
	}
	if _, err := readVarInt(); err != nil { // length
		return 0, nil, err
	}
	count, err := readVarInt()
	if err != nil {
		return 0, nil, err
	}

	matches := make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		strLen, err := readVarInt()
		if err != nil {
			return 0, nil, err
		}
		if pos+int(strLen) > len(body) {
			return 0, nil, errors.New("botproto: tab complete match exceeds packet body")
		}
		matches = append(matches, string(body[pos:pos+int(strLen)]))
		pos += int(strLen)

		hasTooltip, err := readBool(body, &pos)
		if err != nil {
			return 0, nil, err
		}
		if hasTooltip {
			tooltipLen, err := readVarInt()
			if err != nil {
				return 0, nil, err
			}
			pos += int(tooltipLen)
		}
	}
	return txnID, matches, nil
}

func readBool(body []byte, pos *int) (bool, error) {
	if *pos >= len(body) {
		return false, errors.New("botproto: truncated bool")
	}
	v := body[*pos] != 0
	*pos++
	return v, nil
}

func decodeVarIntFromBytes(b []byte) (int32, int, error) {
	var v uint32
	var pos uint
	for i, byt := range b {
		v |= uint32(byt&0x7F) << pos
		if byt&0x80 == 0 {
			return int32(v), i + 1, nil
		}
		pos += 7
		if pos >= 32 {
			return 0, 0, errors.New("botproto: VarInt too big")
		}
	}
	return 0, 0, errors.New("botproto: truncated VarInt")
}

func readInt64(b []byte) (int64, error) {
	if len(b) < 8 {
		return 0, errors.New("botproto: payload too short for int64")
	}
	return int64(binary.BigEndian.Uint64(b[:8])), nil
}

// readJSONString reads the VarInt-length-prefixed JSON chat component
// string that prefixes both system and player chat packet bodies, and
// returns its literal bytes without attempting to walk the chat-component
// tree for plain text — callers only need something to show a human, not a
// faithfully rendered message.
func readJSONString(body []byte) (string, error) {
	n, size, err := decodeVarIntFromBytes(body)
	if err != nil {
		return "", err
	}
	if int(n) < 0 || size+int(n) > len(body) {
		return "", errors.New("botproto: chat string length exceeds packet body")
	}
	return string(body[size : size+int(n)]), nil
}
