package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reconmc/server/internal/db"
)

// gormAgentRepository is the GORM implementation of AgentRepository.
type gormAgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository returns an AgentRepository backed by the provided *gorm.DB.
func NewAgentRepository(database *gorm.DB) AgentRepository {
	return &gormAgentRepository{db: database}
}

// Upsert inserts the agent row on first register, or refreshes its
// name/status/heartbeat on every subsequent one — agents self-mint their own
// ID, so there is no create-vs-update distinction visible to the caller.
func (r *gormAgentRepository) Upsert(ctx context.Context, agent *db.Agent) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "status", "last_heartbeat",
		}),
	}).Create(agent).Error
	if err != nil {
		return fmt.Errorf("agents: upsert: %w", err)
	}
	return nil
}

func (r *gormAgentRepository) GetByID(ctx context.Context, id string) (*db.Agent, error) {
	var agent db.Agent
	err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agents: get by id: %w", err)
	}
	return &agent, nil
}

func (r *gormAgentRepository) UpdateHeartbeat(ctx context.Context, id string, status string, currentQueueID *uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Agent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"current_queue_id": currentQueueID,
			"last_heartbeat":   at,
		})
	if result.Error != nil {
		return fmt.Errorf("agents: update heartbeat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAgentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&db.Agent{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("agents: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAgentRepository) List(ctx context.Context, opts ListOptions) ([]db.Agent, int64, error) {
	var agents []db.Agent
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Agent{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("agents: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("last_heartbeat DESC").
		Find(&agents).Error; err != nil {
		return nil, 0, fmt.Errorf("agents: list: %w", err)
	}

	return agents, total, nil
}

func (r *gormAgentRepository) ListStale(ctx context.Context, cutoff time.Time) ([]db.Agent, error) {
	var agents []db.Agent
	if err := r.db.WithContext(ctx).
		Where("last_heartbeat < ?", cutoff).
		Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("agents: list stale: %w", err)
	}
	return agents, nil
}
