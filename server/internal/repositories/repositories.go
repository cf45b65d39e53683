package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"reconmc/server/internal/db"
)

// -----------------------------------------------------------------------------
// Common
// -----------------------------------------------------------------------------

// ListOptions contains common pagination and filtering options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// ProxyRepository
// -----------------------------------------------------------------------------

type ProxyRepository interface {
	Create(ctx context.Context, proxy *db.Proxy) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Proxy, error)
	Update(ctx context.Context, proxy *db.Proxy) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Proxy, int64, error)
}

// -----------------------------------------------------------------------------
// AccountRepository
// -----------------------------------------------------------------------------

type AccountRepository interface {
	Create(ctx context.Context, account *db.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Account, error)
	Update(ctx context.Context, account *db.Account) error
	UpdateValidation(ctx context.Context, id uuid.UUID, isValid bool, validationErr string, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Account, int64, error)
}

// -----------------------------------------------------------------------------
// AgentRepository
// -----------------------------------------------------------------------------

type AgentRepository interface {
	Upsert(ctx context.Context, agent *db.Agent) error
	GetByID(ctx context.Context, id string) (*db.Agent, error)
	UpdateHeartbeat(ctx context.Context, id string, status string, currentQueueID *uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]db.Agent, int64, error)
	// ListStale returns agents whose last heartbeat is older than cutoff —
	// candidates for being reported offline.
	ListStale(ctx context.Context, cutoff time.Time) ([]db.Agent, error)
}

// -----------------------------------------------------------------------------
// ScanQueueRepository
// -----------------------------------------------------------------------------

type ScanQueueRepository interface {
	Create(ctx context.Context, q *db.ScanQueue) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.ScanQueue, error)

	// ExistsNonTerminal reports whether a pending/processing row already
	// exists for the given target, per the at-most-one-in-flight invariant.
	ExistsNonTerminal(ctx context.Context, resolvedIP string, port int) (bool, error)

	Update(ctx context.Context, q *db.ScanQueue) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.ScanQueue, int64, error)
	ListByStatus(ctx context.Context, status string, opts ListOptions) ([]db.ScanQueue, int64, error)

	// ListStuck returns processing rows whose started_at is older than
	// cutoff — candidates the recovery sweep fails through the queue
	// service, which deletes them.
	ListStuck(ctx context.Context, cutoff time.Time) ([]db.ScanQueue, error)
}

// -----------------------------------------------------------------------------
// ServerRepository
// -----------------------------------------------------------------------------

type ServerRepository interface {
	GetByTarget(ctx context.Context, resolvedIP string, port int) (*db.Server, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db.Server, error)

	// Upsert creates or updates the de-duplicated server row for a target,
	// merging the new hostname into Hostnames and prepending the new
	// history entry (capped at 100) onto ScanHistory.
	Upsert(ctx context.Context, server *db.Server) error

	List(ctx context.Context, opts ListOptions) ([]db.Server, int64, error)
}

// -----------------------------------------------------------------------------
// TaskLogRepository
// -----------------------------------------------------------------------------

type TaskLogRepository interface {
	BulkCreate(ctx context.Context, logs []db.TaskLog) error
	ListByQueueID(ctx context.Context, queueID uuid.UUID) ([]db.TaskLog, error)
	DeleteByQueueID(ctx context.Context, queueID uuid.UUID) error
}
