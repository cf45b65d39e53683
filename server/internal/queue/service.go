// Package queue implements the scan queue: a Redis-backed fast path for
// enqueue/claim/settle with a PostgreSQL SELECT ... FOR UPDATE SKIP LOCKED
// fallback for when Redis is down or the row layout changed underneath it.
// PostgreSQL is always the source of truth — Redis only orders and caches
// claim state for agents that are polling frequently; every decision that
// matters (resource allocation, terminal status) is made and committed in a
// database transaction.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reconmc/server/internal/allocator"
	"reconmc/server/internal/db"
	"reconmc/server/internal/metrics"
	"reconmc/server/internal/repositories"
	"reconmc/shared/types"
)

// claimLockTTL is the lifetime, in seconds, of a Redis claim lock. The
// recovery sweep does not read the lock; it reaps rows by started_at.
const claimLockTTL = 120

// maxHistoryLogs bounds how many of a row's task log lines are folded into
// its server history entry, newest kept when the row produced more.
const maxHistoryLogs = 500

// Target is the input to Enqueue.
type Target struct {
	ServerAddress string
	Hostname      string
	ResolvedIP    string
	Port          int
}

// Claimed is what an agent receives for a successfully claimed row.
type Claimed struct {
	Row     db.ScanQueue
	Proxy   db.Proxy
	Account db.Account
}

// Service is the queue's public surface, used by the API layer.
type Service struct {
	db         *gorm.DB
	queueRepo  repositories.ScanQueueRepository
	serverRepo repositories.ServerRepository
	taskLogs   repositories.TaskLogRepository
	accounts   repositories.AccountRepository
	redis      *redisFastPath
	log        *zap.Logger
}

// New builds a Service. redisClient may be nil, in which case the service
// always takes the Postgres fallback path.
func New(gdb *gorm.DB, redisClient *redis.Client, queueRepo repositories.ScanQueueRepository, serverRepo repositories.ServerRepository, taskLogs repositories.TaskLogRepository, accounts repositories.AccountRepository, log *zap.Logger) *Service {
	return &Service{
		db:         gdb,
		queueRepo:  queueRepo,
		serverRepo: serverRepo,
		taskLogs:   taskLogs,
		accounts:   accounts,
		redis:      newRedisFastPath(redisClient, log),
		log:        log,
	}
}

// Enqueue inserts a new scan_queue row for target, unless a non-terminal row
// for the same (resolvedIp, port) already exists — the at-most-one-in-flight
// invariant (§8 scenario 1: enqueue twice, claim once).
func (s *Service) Enqueue(ctx context.Context, target Target) (*db.ScanQueue, error) {
	exists, err := s.queueRepo.ExistsNonTerminal(ctx, target.ResolvedIP, target.Port)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, repositories.ErrConflict
	}

	row := &db.ScanQueue{
		ServerAddress: target.ServerAddress,
		Hostname:      target.Hostname,
		ResolvedIP:    target.ResolvedIP,
		Port:          target.Port,
		Status:        "pending",
	}
	if err := s.queueRepo.Create(ctx, row); err != nil {
		return nil, err
	}

	if s.redis.available(ctx) {
		if err := s.redis.enqueue(ctx, row.ID.String()); err != nil {
			s.log.Warn("queue: redis enqueue failed, row still claimable via postgres fallback", zap.Error(err))
		}
	}
	return row, nil
}

// Claim hands an idle agent the oldest pending row together with an
// allocated proxy and account, or (nil, nil) if nothing is pending.
func (s *Service) Claim(ctx context.Context, agentID string) (*Claimed, error) {
	if s.redis.available(ctx) {
		claimed, err := s.claimViaRedis(ctx, agentID)
		if err == nil && claimed != nil {
			return claimed, nil
		}
		if err != nil {
			s.log.Warn("queue: redis claim path failed, falling back to postgres", zap.Error(err))
		}
	}

	row, alloc, err := claimPostgres(ctx, s.db, agentID)
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return nil, nil
		}
		return nil, err
	}
	if s.redis.available(ctx) {
		if err := s.redis.setMeta(ctx, row.ID.String(), map[string]interface{}{
			"agentId":   agentID,
			"proxyId":   alloc.Proxy.ID.String(),
			"accountId": alloc.Account.ID.String(),
		}); err != nil {
			s.log.Warn("queue: redis setMeta failed after postgres claim", zap.Error(err))
		}
	}
	return &Claimed{Row: *row, Proxy: alloc.Proxy, Account: alloc.Account}, nil
}

// claimViaRedis pops the next ID off the Redis pending list, then runs the
// same allocate-and-flip-to-processing transaction claimPostgres does,
// scoped to that specific row instead of picking the oldest pending one.
func (s *Service) claimViaRedis(ctx context.Context, agentID string) (*Claimed, error) {
	idStr, err := s.redis.claim(ctx, claimLockTTL)
	if err != nil {
		return nil, err
	}
	if idStr == "" {
		return nil, nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		s.log.Warn("queue: redis handed back a malformed id, dropping", zap.String("id", idStr))
		return nil, nil
	}

	var row db.ScanQueue
	var alloc *allocator.Allocation
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).First(&row, "id = ? AND status = ?", id, "pending").Error; err != nil {
			return fmt.Errorf("queue: claim lookup: %w", err)
		}
		a, err := allocator.Acquire(ctx, tx)
		if err != nil {
			return err
		}
		alloc = a

		now := time.Now()
		row.Status = "processing"
		row.AssignedAgentID = agentID
		row.AssignedProxyID = &alloc.Proxy.ID
		row.AssignedAccountID = &alloc.Account.ID
		row.StartedAt = &now
		return tx.WithContext(ctx).Save(&row).Error
	})
	if err != nil {
		// The row Redis handed us turned out not to be claimable in Postgres
		// (already processing — a prior crash left it stuck in both lists, or
		// it raced with a direct-Postgres claimer). Drop it from Redis's view
		// and let the caller fall through.
		s.redis.settle(ctx, idStr)
		return nil, err
	}

	if err := s.redis.setMeta(ctx, idStr, map[string]interface{}{
		"agentId":   agentID,
		"proxyId":   alloc.Proxy.ID.String(),
		"accountId": alloc.Account.ID.String(),
	}); err != nil {
		s.log.Warn("queue: redis setMeta failed", zap.Error(err))
	}

	return &Claimed{Row: row, Proxy: alloc.Proxy, Account: alloc.Account}, nil
}

// Complete finalizes a successful scan through the shared finalize path
// (§4.5: "fail = complete with errorMessage"), persisting any rotated
// Microsoft tokens (§4.11) alongside it.
func (s *Service) Complete(ctx context.Context, queueID uuid.UUID, result types.ScanResult, rotatedAccessToken, rotatedRefreshToken string) error {
	return s.finalize(ctx, queueID, &result, "", rotatedAccessToken, rotatedRefreshToken)
}

// Fail finalizes a failed scan through the same path Complete uses, with a
// nil result and an errorMessage instead.
func (s *Service) Fail(ctx context.Context, queueID uuid.UUID, errMessage string) error {
	return s.finalize(ctx, queueID, nil, errMessage, "", "")
}

// finalize is the single Complete/Fail path (§4.5). Inside one transaction
// it locks the queue row, no-ops if it was already finalized by a prior
// call (the idempotent-finalize guarantee — a late "complete" racing a
// recovery-induced "fail" must not double-release resources or double-write
// history), releases the allocated proxy/account, resets the claiming
// agent to idle, composes a bounded history entry from the row's task logs
// and duration, upserts it onto the server record, and deletes the queue
// row. Redis settling and the completion metric only fire when this call
// actually performed the finalize, not on the idempotent no-op path.
func (s *Service) finalize(ctx context.Context, queueID uuid.UUID, result *types.ScanResult, errMessage, rotatedAccessToken, rotatedRefreshToken string) error {
	var row db.ScanQueue
	didFinalize := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&row, "id = ?", queueID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repositories.ErrNotFound
			}
			return fmt.Errorf("queue: finalize select: %w", err)
		}

		if row.Status == "completed" || row.Status == "failed" {
			return nil
		}
		didFinalize = true

		if err := allocator.Release(ctx, tx, row.AssignedProxyID, row.AssignedAccountID); err != nil {
			return err
		}

		if row.AssignedAgentID != "" {
			if err := tx.WithContext(ctx).
				Model(&db.Agent{}).
				Where("id = ?", row.AssignedAgentID).
				Updates(map[string]interface{}{
					"status":           "idle",
					"current_queue_id": nil,
				}).Error; err != nil {
				return fmt.Errorf("queue: reset agent: %w", err)
			}
		}

		if rotatedAccessToken != "" && row.AssignedAccountID != nil {
			if err := tx.WithContext(ctx).
				Model(&db.Account{}).
				Where("id = ?", *row.AssignedAccountID).
				Updates(map[string]interface{}{
					"access_token":  db.EncryptedString(rotatedAccessToken),
					"refresh_token": db.EncryptedString(rotatedRefreshToken),
				}).Error; err != nil {
				return fmt.Errorf("queue: persist rotated tokens: %w", err)
			}
		}

		entry, err := s.buildHistoryEntry(ctx, tx, &row, result, errMessage)
		if err != nil {
			return err
		}
		if err := s.upsertServer(ctx, tx, &row, entry); err != nil {
			return err
		}

		if err := repositories.NewScanQueueRepository(tx).Delete(ctx, queueID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !didFinalize {
		return nil
	}

	if s.redis.available(ctx) {
		s.redis.settle(ctx, queueID.String())
	}
	if result != nil {
		metrics.ScansCompleted.WithLabelValues("completed").Inc()
	} else {
		metrics.ScansCompleted.WithLabelValues("failed").Inc()
	}
	return nil
}

// buildHistoryEntry composes the bounded history entry §4.5 describes:
// result is nil on failure, duration is completedAt−startedAt, and logs are
// the row's most recent taskLogs capped at maxHistoryLogs.
func (s *Service) buildHistoryEntry(ctx context.Context, tx *gorm.DB, row *db.ScanQueue, result *types.ScanResult, errMessage string) (types.ScanHistoryEntry, error) {
	now := time.Now()

	var resultJSON json.RawMessage
	if result != nil {
		data, err := json.Marshal(*result)
		if err != nil {
			return types.ScanHistoryEntry{}, fmt.Errorf("queue: encode scan result: %w", err)
		}
		resultJSON = data
	}

	var durationMs int64
	if row.StartedAt != nil {
		durationMs = now.Sub(*row.StartedAt).Milliseconds()
	}

	taskLogs, err := repositories.NewTaskLogRepository(tx).ListByQueueID(ctx, row.ID)
	if err != nil {
		return types.ScanHistoryEntry{}, err
	}
	if len(taskLogs) > maxHistoryLogs {
		taskLogs = taskLogs[len(taskLogs)-maxHistoryLogs:]
	}
	logEntries := make([]types.TaskLogEntry, 0, len(taskLogs))
	for _, l := range taskLogs {
		logEntries = append(logEntries, types.TaskLogEntry{
			Level:     l.Level,
			Message:   l.Message,
			Timestamp: l.Timestamp,
		})
	}

	return types.ScanHistoryEntry{
		Timestamp:    now,
		Result:       resultJSON,
		ErrorMessage: errMessage,
		DurationMs:   durationMs,
		Logs:         logEntries,
	}, nil
}

// Status returns the current state of one queue row.
func (s *Service) Status(ctx context.Context, queueID uuid.UUID) (*db.ScanQueue, error) {
	return s.queueRepo.GetByID(ctx, queueID)
}

// AppendLogs bulk-inserts the log lines an agent batched for a claimed row.
func (s *Service) AppendLogs(ctx context.Context, queueID uuid.UUID, agentID string, lines []types.LogLine) error {
	logs := make([]db.TaskLog, 0, len(lines))
	now := time.Now()
	for _, l := range lines {
		logs = append(logs, db.TaskLog{
			QueueID:   queueID,
			AgentID:   agentID,
			Level:     l.Level,
			Message:   l.Message,
			Timestamp: now,
		})
	}
	return s.taskLogs.BulkCreate(ctx, logs)
}

// upsertServer folds one finalized scan's history entry into the
// de-duplicated servers table. Runs inside the same transaction as the
// queue-row deletion so a crash between the two can never leave a
// finalized queue row with no corresponding server update. entry.Result is
// nil on the fail path, so LatestResult is only touched on success — a
// failure must never overwrite the server's last known-good result.
func (s *Service) upsertServer(ctx context.Context, tx *gorm.DB, row *db.ScanQueue, entry types.ScanHistoryEntry) error {
	historyJSON, err := json.Marshal([]types.ScanHistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("queue: encode scan history entry: %w", err)
	}

	server := &db.Server{
		ServerAddress:   row.ServerAddress,
		ResolvedIP:      row.ResolvedIP,
		Port:            row.Port,
		PrimaryHostname: row.Hostname,
		LastScannedAt:   time.Now(),
		LatestResult:    string(entry.Result),
		ScanHistory:     string(historyJSON),
	}

	repo := repositories.NewServerRepository(tx)
	return repo.Upsert(ctx, server)
}
