// Package types defines the wire-level types shared by the coordinator and
// the agent: the JSON bodies exchanged over the claim/complete/fail/log REST
// endpoints, the scan result bundle an agent reports, and the error-kind
// taxonomy both sides use to classify failures.
package types

import (
	"encoding/json"
	"time"
)

// ─── Error taxonomy ──────────────────────────────────────────────────────────

// ErrorKind classifies a scan or request failure into one of the kinds a
// caller can branch on. Mirrors the taxonomy table in the design notes:
// transient kinds are retried locally by whichever side produced them,
// permanent kinds are surfaced to the caller as-is.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindPrivateIP      ErrorKind = "private_ip"
	KindProxy          ErrorKind = "proxy"
	KindNetwork        ErrorKind = "network"
	KindProtocol       ErrorKind = "protocol"
	KindAuth           ErrorKind = "auth"
	KindRateLimited    ErrorKind = "rate_limited"
	KindStuckTask      ErrorKind = "stuck_task"
	KindRedisUnavailable ErrorKind = "redis_unavailable"
)

// Well-known connection error codes, carried in ScanError.Code when Kind is
// KindNetwork, KindProxy, or KindAuth. Agents and the coordinator both
// switch on these literal strings rather than Kind alone, since several
// distinct codes share a Kind (e.g. ECONNREFUSED and ETIMEDOUT are both
// KindNetwork).
const (
	CodeConnRefused     = "ECONNREFUSED"
	CodeConnTimedOut    = "ETIMEDOUT"
	CodeProxyError      = "PROXY_ERROR"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeAccountMismatch = "ACCOUNT_MISMATCH"
)

// ScanError is the typed result value carried in API responses and in a
// ScanResult's Connection.Error field, replacing exception-based control
// flow per the design notes.
type ScanError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

func (e *ScanError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ─── Server mode ─────────────────────────────────────────────────────────────

// ServerMode classifies a Minecraft server's authentication requirement
// based on the UUID shape of its player sample.
type ServerMode string

const (
	ModeOnline  ServerMode = "online"
	ModeCracked ServerMode = "cracked"
	ModeUnknown ServerMode = "unknown"
)

// ─── Resource references (claim response payload) ───────────────────────────

// ProxyRef is the subset of a proxy record an agent needs to dial through
// it. Never includes currentUsage/maxConcurrent — those are allocator
// bookkeeping the agent has no use for.
type ProxyRef struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Protocol string `json:"protocol"` // "socks4" or "socks5"
}

// AccountRef is the subset of an account record an agent needs to
// authenticate a bot session.
type AccountRef struct {
	ID           string `json:"id"`
	Type         string `json:"type"` // "cracked" or "microsoft"
	Username     string `json:"username,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ─── Agent-facing REST bodies ────────────────────────────────────────────────

type RegisterRequest struct {
	AgentID string `json:"agentId"`
	Name    string `json:"name,omitempty"`
}

type RegisterResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

type HeartbeatRequest struct {
	AgentID        string  `json:"agentId"`
	Status         string  `json:"status,omitempty"`
	CurrentQueueID *string `json:"currentQueueId,omitempty"`
}

type ClaimRequest struct {
	AgentID string `json:"agentId"`
}

type ClaimResponse struct {
	QueueID       string   `json:"queueId"`
	ServerAddress string   `json:"serverAddress"`
	Port          int      `json:"port"`
	Proxy         ProxyRef `json:"proxy"`
	Account       AccountRef `json:"account"`
}

// CompleteRequest is posted by the agent to /api/queue/:id/complete. Result
// carries the opaque ScanResult bundle; AccessToken/RefreshToken are only
// set when the scan's Microsoft auth chain rotated the account's tokens, so
// the coordinator can persist them onto the account row in the same
// transaction as the rest of finalize (the token-refresh callback wiring
// from §4.11).
type CompleteRequest struct {
	Result       ScanResult `json:"result"`
	AccessToken  string     `json:"accessToken,omitempty"`
	RefreshToken string     `json:"refreshToken,omitempty"`
}

type FailRequest struct {
	ErrorMessage string `json:"errorMessage"`
}

type LogLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type TaskLogsRequest struct {
	AgentID string    `json:"agentId"`
	Logs    []LogLine `json:"logs"`
}

// ─── Scan result bundle ──────────────────────────────────────────────────────

// PingResult is the outcome of the SLP probe (§4.1/§4.4 step 3-5).
type PingResult struct {
	Success bool            `json:"success"`
	Latency int64           `json:"latencyMs,omitempty"`
	Status  json.RawMessage `json:"status,omitempty"` // validated/sanitized status JSON
	Error   string          `json:"error,omitempty"`
}

// Position is the bot's recorded spawn location.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ConnectionResult is the outcome of the bot-login stage (§4.4 step 7).
type ConnectionResult struct {
	Success       bool       `json:"success"`
	SpawnPosition *Position  `json:"spawnPosition,omitempty"`
	UUID          string     `json:"uuid,omitempty"`
	Latency       int64      `json:"latencyMs,omitempty"`
	ConnectedAt   *time.Time `json:"connectedAt,omitempty"`
	Kicked        bool       `json:"kicked,omitempty"`
	KickReason    json.RawMessage `json:"kickReason,omitempty"`
	Error         *ScanError `json:"error,omitempty"`
}

// AutoAuthResult records whether the cracked-mode auto-auth watcher fired
// and whether it believed it succeeded (§4.4 step 7).
type AutoAuthResult struct {
	Attempted bool `json:"attempted"`
	Succeeded bool `json:"succeeded"`
}

// PluginResult is the outcome of plugin detection (§4.4 step 8 / §4.8).
// Method is one of: command_tree, tab_complete, combined, plugins_command,
// bukkit_plugins_command, none.
type PluginResult struct {
	Method  string   `json:"method"`
	Plugins []string `json:"plugins"`
}

// ScanResult is the full bundle an agent reports for one claimed target.
type ScanResult struct {
	Ping       PingResult        `json:"ping"`
	ServerMode ServerMode        `json:"serverMode,omitempty"`
	Connection *ConnectionResult `json:"connection,omitempty"`
	AutoAuth   *AutoAuthResult   `json:"autoAuth,omitempty"`
	Plugins    *PluginResult     `json:"plugins,omitempty"`
}

// ─── History (coordinator-side persisted shape, also read by operators) ─────

// ScanHistoryEntry is one bounded entry in a server's scan history, newest
// first, capped at 100 entries per server.
type ScanHistoryEntry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Result       json.RawMessage `json:"result,omitempty"` // nil on failure
	ErrorMessage string          `json:"errorMessage,omitempty"`
	DurationMs   int64           `json:"durationMs,omitempty"`
	Logs         []TaskLogEntry  `json:"logs,omitempty"`
}

// TaskLogEntry is one log line captured during a scan, bounded to the 500
// most recent entries carried into a history entry.
type TaskLogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ─── Pagination (teacher convention, reused as-is) ───────────────────────────

type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type PagedResult[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  Page  `json:"page"`
}
