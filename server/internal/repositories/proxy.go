package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"reconmc/server/internal/db"
)

// gormProxyRepository is the GORM implementation of ProxyRepository.
type gormProxyRepository struct {
	db *gorm.DB
}

// NewProxyRepository returns a ProxyRepository backed by the provided *gorm.DB.
func NewProxyRepository(database *gorm.DB) ProxyRepository {
	return &gormProxyRepository{db: database}
}

func (r *gormProxyRepository) Create(ctx context.Context, proxy *db.Proxy) error {
	if err := r.db.WithContext(ctx).Create(proxy).Error; err != nil {
		return fmt.Errorf("proxies: create: %w", err)
	}
	return nil
}

func (r *gormProxyRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Proxy, error) {
	var proxy db.Proxy
	err := r.db.WithContext(ctx).First(&proxy, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("proxies: get by id: %w", err)
	}
	return &proxy, nil
}

func (r *gormProxyRepository) Update(ctx context.Context, proxy *db.Proxy) error {
	result := r.db.WithContext(ctx).Save(proxy)
	if result.Error != nil {
		return fmt.Errorf("proxies: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProxyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Proxy{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("proxies: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProxyRepository) List(ctx context.Context, opts ListOptions) ([]db.Proxy, int64, error) {
	var proxies []db.Proxy
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Proxy{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("proxies: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&proxies).Error; err != nil {
		return nil, 0, fmt.Errorf("proxies: list: %w", err)
	}

	return proxies, total, nil
}
