package scan

import (
	"time"

	"reconmc/shared/types"
)

// ProtocolVersion pins the protocol version advertised in every handshake
// this package sends; the slp and botproto packet shapes are grounded on
// this version and are not expected to track newer ones.
const ProtocolVersion int32 = 763

// Config bounds every timing-sensitive stage of a scan. Defaults mirror
// the budgets observed against real target servers: generous enough that
// a slow-but-legitimate server isn't misclassified as unreachable, tight
// enough that one hung target can't starve an agent's whole work cycle.
type Config struct {
	// ScanBudget bounds the whole nine-step pipeline for a single target.
	ScanBudget time.Duration

	SLPConnectTimeout time.Duration
	SLPRetries        int
	SLPRetryBackoff   time.Duration

	BotConnectTimeout time.Duration
	BotRetries        int
	BotRetryBackoff   time.Duration

	// ChatWatchWindow bounds how long a chat-driven probe (plugins
	// command, auto-auth prompt) waits for a reply before giving up.
	ChatWatchWindow time.Duration

	// AutoAuthEnabled toggles the cracked-mode chat watcher in step 7.
	AutoAuthEnabled bool
	// AutoAuthPassword is sent in reply to a /register or /login prompt
	// when no account-specific password is configured.
	AutoAuthPassword string

	// UseAsyncClassification selects the Minetools/PlayerDB lookup
	// classifier (classifyAsync). Off by default. Executor.Execute does not
	// read it: step 4 of the per-claim scan always uses the synchronous
	// regex-only classifier, and nothing else in the repository reads it.
	UseAsyncClassification bool
}

// DefaultConfig returns the timing budget used in production.
func DefaultConfig() Config {
	return Config{
		ScanBudget:        5 * time.Minute,
		SLPConnectTimeout: 5 * time.Second,
		SLPRetries:        2,
		SLPRetryBackoff:   1 * time.Second,
		BotConnectTimeout: 15 * time.Second,
		BotRetries:        2,
		BotRetryBackoff:   2 * time.Second,
		ChatWatchWindow:   3 * time.Second,
		AutoAuthEnabled:   true,
		AutoAuthPassword:  "reconmc",
	}
}

// Target is one claimed queue item's worth of work: where to dial, and
// which scarce resources (proxy, account) to dial it with.
type Target struct {
	ServerAddress string
	Port          int
	Proxy         types.ProxyRef
	Account       types.AccountRef
}
