package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all UUID-keyed models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
// This ensures every record has a valid time-ordered ID before insertion.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with a nullable DeletedAt field for soft deletion.
// GORM automatically filters out soft-deleted records from all queries unless
// Unscoped() is used explicitly.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Proxies
// -----------------------------------------------------------------------------

// Proxy is a SOCKS4/SOCKS5 relay an agent dials a target through. Password is
// encrypted at rest; Username travels in clear since SOCKS credentials are
// not secret by themselves without the password. CurrentUsage/MaxConcurrent
// are allocator bookkeeping — an agent claiming a target is handed the
// least-loaded active proxy with headroom, never the proxy's own usage
// counter (see ProxyRef in the shared wire types).
type Proxy struct {
	softDelete
	Host           string          `gorm:"not null;index:idx_proxies_host_port,unique"`
	Port           int             `gorm:"not null;index:idx_proxies_host_port,unique"`
	Username       string          `gorm:"default:''"`
	Password       EncryptedString `gorm:"type:text;default:''"`
	Protocol       string          `gorm:"not null;default:'socks5'"` // "socks4" or "socks5"
	CurrentUsage   int             `gorm:"not null;default:0"`
	MaxConcurrent  int             `gorm:"not null;default:1"`
	IsActive       bool            `gorm:"not null;default:true"`
	LastUsedAt     *time.Time
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

// Account is a Minecraft identity an agent authenticates a bot session with.
// Cracked accounts only ever populate Username; Microsoft accounts populate
// AccessToken/RefreshToken, both encrypted at rest, and are periodically
// revalidated (IsValid/LastValidatedAt/LastValidationError) since Microsoft
// tokens expire and refresh tokens can be revoked out of band.
type Account struct {
	softDelete
	Type                string          `gorm:"not null"` // "cracked" or "microsoft"
	Username            string          `gorm:"default:''"`
	AccessToken         EncryptedString `gorm:"type:text;default:''"`
	RefreshToken        EncryptedString `gorm:"type:text;default:''"`
	CurrentUsage        int             `gorm:"not null;default:0"`
	MaxConcurrent       int             `gorm:"not null;default:1"`
	IsActive            bool            `gorm:"not null;default:true"`
	IsValid             bool            `gorm:"not null"`
	LastValidatedAt     *time.Time
	LastValidationError string `gorm:"type:text;default:''"`
	LastUsedAt          *time.Time
}

// -----------------------------------------------------------------------------
// Agents
// -----------------------------------------------------------------------------

// Agent represents a connected scanner process. Unlike every other model,
// its ID is not a server-minted UUID: agents are pull clients with no
// registration handshake that hands back an identity (see the coordclient
// state file on the agent side), so the ID a caller presents at /register is
// whatever it self-minted on first run and persisted locally. Rows are
// ephemeral — driven by heartbeat TTL rather than soft deletion — so Agent
// does not embed base or softDelete.
type Agent struct {
	ID             string `gorm:"type:text;primaryKey"` // caller-supplied, ^[A-Za-z0-9_-]{1,100}$
	Name           string `gorm:"not null;default:''"`
	Status         string `gorm:"not null;default:'idle'"` // "idle" or "busy"
	CurrentQueueID *uuid.UUID `gorm:"type:text"`
	LastHeartbeat  time.Time  `gorm:"not null;index"`
	RegisteredAt   time.Time  `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Scan queue
// -----------------------------------------------------------------------------

// ScanQueue is one unit of scan work, from enqueue through terminal
// completed/failed. The unique index on (ResolvedIP, Port) enforces the
// at-most-one-non-terminal-row-per-target invariant at the database layer;
// the queue service additionally scopes its existence check to non-terminal
// statuses so a target can be re-enqueued once its prior row has settled.
type ScanQueue struct {
	base
	ServerAddress    string     `gorm:"not null"`
	Hostname         string     `gorm:"default:''"`
	ResolvedIP       string     `gorm:"not null;index:idx_scan_queue_target,unique"`
	Port             int        `gorm:"not null;index:idx_scan_queue_target,unique"`
	Status           string     `gorm:"not null;default:'pending';index"` // pending|processing|completed|failed
	AssignedAgentID  string     `gorm:"default:''"`
	AssignedProxyID  *uuid.UUID `gorm:"type:text"`
	AssignedAccountID *uuid.UUID `gorm:"type:text"`
	RetryCount       int        `gorm:"not null;default:0"`
	ErrorMessage     string     `gorm:"type:text;default:''"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// -----------------------------------------------------------------------------
// Servers
// -----------------------------------------------------------------------------

// Server is the de-duplicated, persistent record for one (resolvedIp, port)
// target across every scan it has ever been claimed for. LatestResult and
// ScanHistory are stored as JSON in plain text columns, marshaled by the
// repository layer, rather than native jsonb so the same model serves both the
// Postgres and SQLite backends — mirrors the teacher's Policy.Sources /
// Destination.Config convention. ScanHistory is capped at 100 entries,
// newest first, enforced by the repository on write.
type Server struct {
	base
	ServerAddress   string `gorm:"not null"`
	ResolvedIP      string `gorm:"not null;index:idx_servers_target,unique"`
	Port            int    `gorm:"not null;index:idx_servers_target,unique"`
	PrimaryHostname string `gorm:"default:''"`
	Hostnames       string `gorm:"type:text;default:'[]'"` // JSON array of strings
	FirstSeenAt     time.Time `gorm:"not null"`
	LastScannedAt   time.Time `gorm:"not null;index"`
	ScanCount       int64     `gorm:"not null;default:0"`
	LatestResult    string    `gorm:"type:text;default:''"` // JSON-encoded types.ScanResult
	ScanHistory     string    `gorm:"type:text;default:'[]'"` // JSON array of types.ScanHistoryEntry, newest first, capped at 100
}

// -----------------------------------------------------------------------------
// Task logs
// -----------------------------------------------------------------------------

// TaskLog stores one log line an agent reported while executing a claimed
// queue row. Logs are inserted in bulk when an agent batches its buffered
// lines, not one row per line, mirroring the teacher's JobLog bulk-insert
// convention. QueueID cascades on delete so history purges clean up after
// themselves.
type TaskLog struct {
	base
	QueueID   uuid.UUID `gorm:"type:text;not null;index"`
	AgentID   string    `gorm:"not null;index"`
	Level     string    `gorm:"not null"` // "info", "warn", "error"
	Message   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null;index"`
}
