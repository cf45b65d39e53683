package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"reconmc/server/internal/db"
)

// gormTaskLogRepository is the GORM implementation of TaskLogRepository.
type gormTaskLogRepository struct {
	db *gorm.DB
}

// NewTaskLogRepository returns a TaskLogRepository backed by the provided *gorm.DB.
func NewTaskLogRepository(database *gorm.DB) TaskLogRepository {
	return &gormTaskLogRepository{db: database}
}

// BulkCreate inserts multiple log lines in a single statement. Agents batch
// their buffered lines and post them in one request rather than one row per
// line, so this is the only write path task logs take.
func (r *gormTaskLogRepository) BulkCreate(ctx context.Context, logs []db.TaskLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("task_logs: bulk create: %w", err)
	}
	return nil
}

func (r *gormTaskLogRepository) ListByQueueID(ctx context.Context, queueID uuid.UUID) ([]db.TaskLog, error) {
	var logs []db.TaskLog
	if err := r.db.WithContext(ctx).
		Where("queue_id = ?", queueID).
		Order("timestamp ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("task_logs: list by queue id: %w", err)
	}
	return logs, nil
}

func (r *gormTaskLogRepository) DeleteByQueueID(ctx context.Context, queueID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Delete(&db.TaskLog{}, "queue_id = ?", queueID).Error; err != nil {
		return fmt.Errorf("task_logs: delete by queue id: %w", err)
	}
	return nil
}
