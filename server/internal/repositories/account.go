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

// gormAccountRepository is the GORM implementation of AccountRepository.
type gormAccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns an AccountRepository backed by the provided *gorm.DB.
func NewAccountRepository(database *gorm.DB) AccountRepository {
	return &gormAccountRepository{db: database}
}

func (r *gormAccountRepository) Create(ctx context.Context, account *db.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("accounts: create: %w", err)
	}
	return nil
}

func (r *gormAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Account, error) {
	var account db.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: get by id: %w", err)
	}
	return &account, nil
}

func (r *gormAccountRepository) Update(ctx context.Context, account *db.Account) error {
	result := r.db.WithContext(ctx).Save(account)
	if result.Error != nil {
		return fmt.Errorf("accounts: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateValidation records the outcome of a periodic token-validity check
// without disturbing the allocator's usage counters.
func (r *gormAccountRepository) UpdateValidation(ctx context.Context, id uuid.UUID, isValid bool, validationErr string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_valid":              isValid,
			"last_validation_error": validationErr,
			"last_validated_at":     at,
		})
	if result.Error != nil {
		return fmt.Errorf("accounts: update validation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Account{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("accounts: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAccountRepository) List(ctx context.Context, opts ListOptions) ([]db.Account, int64, error) {
	var accounts []db.Account
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Account{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("accounts: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&accounts).Error; err != nil {
		return nil, 0, fmt.Errorf("accounts: list: %w", err)
	}

	return accounts, total, nil
}
