package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reconmc/server/internal/allocator"
	"reconmc/server/internal/db"
)

// ErrEmpty is returned by claimPostgres when no pending row is available.
var ErrEmpty = errors.New("queue: no pending work")

// claimPostgres is the fallback claim path used when Redis is unavailable.
// It runs entirely inside one transaction: lock the oldest pending row with
// SELECT ... FOR UPDATE SKIP LOCKED (so two agents polling concurrently
// never grab the same row), acquire a proxy and account via the allocator,
// then flip the row to processing — all or nothing.
func claimPostgres(ctx context.Context, gdb *gorm.DB, agentID string) (*db.ScanQueue, *allocator.Allocation, error) {
	var row db.ScanQueue
	var alloc *allocator.Allocation

	err := gdb.Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx).Where("status = ?", "pending").Order("created_at ASC").Limit(1)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEmpty
			}
			return fmt.Errorf("queue: claim select: %w", err)
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

		if err := tx.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("queue: claim update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &row, alloc, nil
}
