package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"reconmc/server/internal/db"
)

// gormScanQueueRepository is the GORM implementation of ScanQueueRepository.
// The claim-with-allocation path (SELECT ... FOR UPDATE SKIP LOCKED across a
// transaction shared with the resource allocator) lives in the queue
// package, not here — this repository only covers the CRUD and listing
// surface every other caller needs.
type gormScanQueueRepository struct {
	db *gorm.DB
}

// NewScanQueueRepository returns a ScanQueueRepository backed by the provided *gorm.DB.
func NewScanQueueRepository(database *gorm.DB) ScanQueueRepository {
	return &gormScanQueueRepository{db: database}
}

func (r *gormScanQueueRepository) Create(ctx context.Context, q *db.ScanQueue) error {
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("scan_queue: create: %w", err)
	}
	return nil
}

func (r *gormScanQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.ScanQueue, error) {
	var q db.ScanQueue
	err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan_queue: get by id: %w", err)
	}
	return &q, nil
}

func (r *gormScanQueueRepository) ExistsNonTerminal(ctx context.Context, resolvedIP string, port int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.ScanQueue{}).
		Where("resolved_ip = ? AND port = ? AND status IN ('pending', 'processing')", resolvedIP, port).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("scan_queue: exists non-terminal: %w", err)
	}
	return count > 0, nil
}

func (r *gormScanQueueRepository) Update(ctx context.Context, q *db.ScanQueue) error {
	result := r.db.WithContext(ctx).Save(q)
	if result.Error != nil {
		return fmt.Errorf("scan_queue: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormScanQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.ScanQueue{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("scan_queue: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormScanQueueRepository) List(ctx context.Context, opts ListOptions) ([]db.ScanQueue, int64, error) {
	var rows []db.ScanQueue
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.ScanQueue{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("scan_queue: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("scan_queue: list: %w", err)
	}

	return rows, total, nil
}

func (r *gormScanQueueRepository) ListByStatus(ctx context.Context, status string, opts ListOptions) ([]db.ScanQueue, int64, error) {
	var rows []db.ScanQueue
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&db.ScanQueue{}).
		Where("status = ?", status).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("scan_queue: list by status count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("scan_queue: list by status: %w", err)
	}

	return rows, total, nil
}

// ListStuck returns processing rows whose started_at predates cutoff — the
// recovery sweep's candidate set for being failed and deleted.
func (r *gormScanQueueRepository) ListStuck(ctx context.Context, cutoff time.Time) ([]db.ScanQueue, error) {
	var rows []db.ScanQueue
	err := r.db.WithContext(ctx).
		Where("status = 'processing' AND started_at < ?", cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan_queue: list stuck: %w", err)
	}
	return rows, nil
}
