package scan

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reconmc/agent/internal/botproto"
	"reconmc/agent/internal/msauth"
	"reconmc/agent/internal/plugins"
	"reconmc/agent/internal/slp"
	"reconmc/agent/internal/socks"
	"reconmc/shared/types"
)

// LogFunc receives one log line emitted during a scan, already redacted of
// the proxy host and account username — callers forward it to the
// coordinator's task-log endpoint or stdout.
type LogFunc func(level, message string)

// TokenRotation carries a Microsoft account's refreshed tokens out of a
// scan when the auth chain rotated them mid-run, so the caller can persist
// them onto the account row alongside the rest of finalize.
type TokenRotation struct {
	AccessToken  string
	RefreshToken string
}

// Executor runs the nine-step scan pipeline against one claimed target at
// a time. It holds no per-target state, so a single Executor is safe to
// reuse (not concurrently) across an agent's claim loop.
type Executor struct {
	log *zap.Logger
	cfg Config

	// client holds the live bot session between connectBot and the
	// plugin-detection step within a single Execute call.
	client *botproto.Client
}

// NewExecutor returns an Executor bound to cfg; log is the base logger a
// scan's own log lines are derived from.
func NewExecutor(log *zap.Logger, cfg Config) *Executor {
	return &Executor{log: log, cfg: cfg}
}

// Execute runs the full pipeline for one target. The returned error is
// only non-nil when step 1 fails: an SSRF guard reject, or a failed DNS
// lookup of the target (including one cut short by context cancellation
// before any later step ran) — these map to the
// coordinator's /fail endpoint. Every other outcome, including a failed
// ping or a kicked bot, is reported as a populated ScanResult via the
// ordinary /complete path, since a Minecraft server failing to respond is
// an expected scan outcome, not an agent error.
func (e *Executor) Execute(ctx context.Context, target Target, logSink LogFunc) (*types.ScanResult, *TokenRotation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScanBudget)
	defer cancel()

	log := redactedLog(logSink, target.Proxy.Host, target.Account.Username)
	result := &types.ScanResult{}

	// Step 1: resolve + SSRF guard.
	log("info", fmt.Sprintf("resolving %s", target.ServerAddress))
	if err := resolveAndGuard(ctx, target.ServerAddress); err != nil {
		return nil, nil, err
	}

	// Step 2: optional SRV lookup (skipped whenever a proxy is assigned,
	// since the proxy performs its own remote resolution and never
	// surfaces the record to us).
	host, port, redirected := resolveSRV(ctx, target.ServerAddress, target.Port, true)
	if redirected {
		log("info", fmt.Sprintf("SRV redirect to %s", formatAddr(host, port)))
	}

	proxy := toSocksProxy(target.Proxy)

	// Step 3: SLP probe.
	ping := e.probe(ctx, proxy, host, port)
	result.Ping = ping
	if !ping.Success {
		log("warn", "ping failed: "+ping.Error)
		return result, nil, nil
	}
	log("info", fmt.Sprintf("ping ok, %dms", ping.Latency))

	// Step 4: server-mode classification, always with the synchronous
	// classifier; UseAsyncClassification is not consulted here.
	sample := extractSample(ping.Status)
	mode := classifySync(sample)
	result.ServerMode = mode
	log("info", "server mode: "+string(mode))

	// Step 6: synthetic ACCOUNT_MISMATCH short-circuit (checked ahead of
	// the bot connect it would otherwise gate).
	if mode == types.ModeOnline && target.Account.Type != "microsoft" {
		result.Connection = &types.ConnectionResult{
			Success: false,
			Error: &types.ScanError{
				Kind:    types.KindAuth,
				Code:    types.CodeAccountMismatch,
				Message: "server is online-mode but assigned account is not microsoft",
			},
		}
		log("warn", "account mismatch: online-mode server, non-microsoft account")
		return result, nil, nil
	}

	// Step 7: bot connect + auto-auth.
	conn, auth, rotation, err := e.connectBot(ctx, proxy, host, port, target.Account, log)
	result.Connection = conn
	if auth != nil {
		result.AutoAuth = auth
	}
	if err != nil {
		log("warn", "bot connect failed: "+err.Error())
		return result, rotation, nil
	}
	if !conn.Success {
		return result, rotation, nil
	}

	// Step 8: plugin detection, reusing the same live session.
	if e.client != nil {
		pluginResult, err := plugins.Detect(ctx, e.client.Commands(), e.tabCompleteFunc(), e.chatCommandFunc())
		if err != nil {
			log("warn", "plugin detection failed: "+err.Error())
		} else {
			result.Plugins = pluginResult
			log("info", fmt.Sprintf("plugins: %s (%d found)", pluginResult.Method, len(pluginResult.Plugins)))
		}
		_ = e.client.Close()
		e.client = nil
	}

	return result, rotation, nil
}

// client is set transiently during connectBot so Execute's plugin-
// detection step can reuse the same live session without threading it
// through every return path.
func (e *Executor) tabCompleteFunc() plugins.TabCompleteFunc {
	return func(ctx context.Context, text string) ([]string, error) {
		return e.client.TabComplete(ctx, text)
	}
}

func (e *Executor) chatCommandFunc() plugins.ChatCommandFunc {
	return func(ctx context.Context, command string) (string, error) {
		return e.client.SendChatCommand(ctx, command, e.cfg.ChatWatchWindow)
	}
}

// probe runs the SLP handshake/status/ping exchange with retry/backoff,
// returning a PingResult regardless of outcome — a failed probe is a
// scan result, not an error.
func (e *Executor) probe(ctx context.Context, proxy socks.Proxy, host string, port int) types.PingResult {
	var lastErr error
	attempts := e.cfg.SLPRetries + 1

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return types.PingResult{Success: false, Error: ctx.Err().Error()}
			case <-time.After(e.cfg.SLPRetryBackoff):
			}
		}

		status, latency, err := e.probeOnce(ctx, proxy, host, port)
		if err == nil {
			return types.PingResult{Success: true, Latency: latency, Status: status}
		}
		lastErr = err
	}

	return types.PingResult{Success: false, Error: classifyNetErr(lastErr)}
}

func (e *Executor) probeOnce(ctx context.Context, proxy socks.Proxy, host string, port int) (status []byte, latencyMs int64, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.SLPConnectTimeout)
	defer cancel()

	conn, err := socks.DialTCP(dialCtx, proxy, host, port)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(e.cfg.SLPConnectTimeout))

	if _, err := conn.Write(slp.EncodeHandshake(ProtocolVersion, host, uint16(port))); err != nil {
		return nil, 0, err
	}
	if _, err := conn.Write(slp.EncodeStatusRequest()); err != nil {
		return nil, 0, err
	}

	decoder := slp.NewDecoder()
	buf := make([]byte, 4096)
	statusBody, err := readStatusPacket(conn, decoder, buf)
	if err != nil {
		return nil, 0, err
	}

	raw, err := slp.DecodeStatusResponseBody(statusBody)
	if err != nil {
		return nil, 0, err
	}
	validated, err := slp.ValidateStatusJSON(raw)
	if err != nil {
		return nil, 0, err
	}

	pingPayload := pingNonce()
	start := time.Now()
	if _, err := conn.Write(slp.EncodePing(pingPayload)); err != nil {
		return nil, 0, err
	}
	pongBody, err := readStatusPacket(conn, decoder, buf)
	if err != nil {
		return nil, 0, err
	}
	echoed, err := slp.DecodePongBody(pongBody)
	if err != nil || echoed != pingPayload {
		return nil, 0, errors.New("slp: pong payload mismatch")
	}

	return validated, time.Since(start).Milliseconds(), nil
}

func readStatusPacket(conn net.Conn, decoder *slp.Decoder, buf []byte) ([]byte, error) {
	for {
		pkt, err := decoder.Next()
		if err == nil {
			return pkt.Data, nil
		}
		if !errors.Is(err, slp.ErrIncomplete) {
			return nil, err
		}
		n, rerr := conn.Read(buf)
		if rerr != nil {
			return nil, rerr
		}
		decoder.Feed(buf[:n])
	}
}

func pingNonce() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// connectBot dials a fresh connection for the bot session, performs
// login, waits for spawn, and (when enabled) runs the cracked-mode
// auto-auth watcher. The resulting Client is stashed on e so Execute's
// plugin-detection step can reuse the same session.
func (e *Executor) connectBot(ctx context.Context, proxy socks.Proxy, host string, port int, account types.AccountRef, log LogFunc) (*types.ConnectionResult, *types.AutoAuthResult, *TokenRotation, error) {
	var rotation *TokenRotation
	username := account.Username
	playerUUID := offlineUUID(username)

	if account.Type == "microsoft" {
		profile, rot, err := e.refreshMicrosoft(ctx, proxy, account)
		if err != nil {
			return &types.ConnectionResult{Success: false, Error: toScanError(err)}, nil, nil, err
		}
		rotation = rot
		username = profile.Name
		playerUUID = parseDashedUUID(profile.ID)
	}

	var lastErr error
	attempts := e.cfg.BotRetries + 1
	var client *botproto.Client

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return &types.ConnectionResult{Success: false, Error: toScanError(ctx.Err())}, nil, rotation, ctx.Err()
			case <-time.After(e.cfg.BotRetryBackoff):
			}
		}

		dialCtx, cancel := context.WithTimeout(ctx, e.cfg.BotConnectTimeout)
		conn, err := socks.DialTCP(dialCtx, proxy, host, port)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}

		start := time.Now()
		c, err := botproto.Connect(dialCtx, conn, host, uint16(port), ProtocolVersion, username, playerUUID)
		cancel()
		if err != nil {
			_ = conn.Close()
			if reason, ok := kickReason(err); ok {
				return &types.ConnectionResult{
					Success:    false,
					Kicked:     true,
					KickReason: []byte(strconv.Quote(reason)),
					Error:      toScanError(err),
				}, nil, rotation, nil
			}
			lastErr = err
			continue
		}
		client = c
		connLatency := time.Since(start).Milliseconds()

		spawnCtx, spawnCancel := context.WithTimeout(ctx, e.cfg.BotConnectTimeout)
		pos, err := client.WaitForSpawn(spawnCtx)
		spawnCancel()
		if err != nil {
			_ = client.Close()
			client = nil
			if reason, ok := kickReason(err); ok {
				return &types.ConnectionResult{
					Success:    false,
					Kicked:     true,
					KickReason: []byte(strconv.Quote(reason)),
					Error:      toScanError(err),
				}, nil, rotation, nil
			}
			lastErr = err
			continue
		}

		now := time.Now()
		connResult := &types.ConnectionResult{
			Success:       true,
			SpawnPosition: &pos,
			UUID:          hex.EncodeToString(playerUUID[:]),
			Latency:       connLatency,
			ConnectedAt:   &now,
		}

		var authResult *types.AutoAuthResult
		if e.cfg.AutoAuthEnabled && account.Type == "cracked" {
			password := e.cfg.AutoAuthPassword
			authResult = runAutoAuth(ctx, client, password)
		}

		e.client = client
		return connResult, authResult, rotation, nil
	}

	return &types.ConnectionResult{Success: false, Error: toScanError(lastErr)}, nil, rotation, lastErr
}

func (e *Executor) refreshMicrosoft(ctx context.Context, proxy socks.Proxy, account types.AccountRef) (msauth.Profile, *TokenRotation, error) {
	chain := msauth.NewChain(proxy, e.log)
	var rotation *TokenRotation
	chain.SetOnRefresh(func(accessToken, refreshToken string) {
		rotation = &TokenRotation{AccessToken: accessToken, RefreshToken: refreshToken}
	})

	result, err := chain.Refresh(ctx, account.RefreshToken, account.AccessToken)
	if err != nil {
		return msauth.Profile{}, nil, err
	}
	if result.Refreshed {
		rotation = &TokenRotation{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}
	}
	return result.Profile, rotation, nil
}

func toSocksProxy(ref types.ProxyRef) socks.Proxy {
	return socks.Proxy{
		Host:     ref.Host,
		Port:     ref.Port,
		Username: ref.Username,
		Password: ref.Password,
		Protocol: ref.Protocol,
	}
}

func toScanError(err error) *types.ScanError {
	if err == nil {
		return nil
	}
	var se *types.ScanError
	if errors.As(err, &se) {
		return se
	}
	return &types.ScanError{Kind: types.KindNetwork, Code: classifyNetErr(err), Message: err.Error()}
}

// classifyNetErr maps a raw dial/read error to the well-known connection
// error codes the coordinator and agent both switch on.
func classifyNetErr(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "refused"):
		return types.CodeConnRefused
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"), strings.Contains(msg, "i/o timeout"):
		return types.CodeConnTimedOut
	case strings.Contains(msg, "socks"):
		return types.CodeProxyError
	default:
		return msg
	}
}

// kickPrefixes are the message shapes botproto produces when the server
// disconnects the bot during login or during play, distinguishing a kick
// from an ordinary connection failure.
var kickPrefixes = []string{"kicked: ", "disconnected during login: "}

func kickReason(err error) (string, bool) {
	msg := err.Error()
	for _, prefix := range kickPrefixes {
		if idx := strings.Index(msg, prefix); idx >= 0 {
			return msg[idx+len(prefix):], true
		}
	}
	return "", false
}

func parseDashedUUID(id string) [16]byte {
	var out [16]byte
	clean := strings.ReplaceAll(id, "-", "")
	if len(clean) != 32 {
		return out
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return out
	}
	copy(out[:], b)
	return out
}

// redactedLog wraps a LogFunc so every line has the proxy host and account
// username scrubbed before it leaves the agent — both are sensitive
// operator-controlled secrets that must never land in coordinator task
// logs or stdout.
func redactedLog(sink LogFunc, proxyHost, accountUsername string) LogFunc {
	return func(level, message string) {
		if sink == nil {
			return
		}
		if proxyHost != "" {
			message = strings.ReplaceAll(message, proxyHost, "[proxy]")
		}
		if accountUsername != "" {
			message = strings.ReplaceAll(message, accountUsername, "[account]")
		}
		sink(level, message)
	}
}
