// Package allocator hands out the least-loaded active proxy and account for
// a claimed scan, and releases them again once the scan settles. Every
// method operates inside the caller's existing *gorm.DB transaction (the
// queue service's claim/complete/fail paths) rather than opening its own —
// acquisition and queue-row mutation must commit atomically or a crash
// between the two would leak a resource's usage counter forever.
package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reconmc/server/internal/db"
)

// withRowLock applies SELECT ... FOR UPDATE only on Postgres. SQLite has no
// row-locking syntax and its connection pool is already capped at one
// writer (see db.New), which serializes these reads on its own.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ErrNoProxyAvailable is returned when no active proxy has spare capacity.
var ErrNoProxyAvailable = errors.New("allocator: no proxy available")

// ErrNoAccountAvailable is returned when no active, valid account has spare
// capacity.
var ErrNoAccountAvailable = errors.New("allocator: no account available")

// Allocation bundles the two resources a claimed scan needs.
type Allocation struct {
	Proxy   db.Proxy
	Account db.Account
}

// Acquire locks and returns the least-loaded active proxy and least-loaded
// active+valid account with spare capacity, incrementing both usage
// counters and stamping LastUsedAt. Must be called with tx already inside a
// transaction — it issues SELECT ... FOR UPDATE, which is a no-op lock
// outside one.
func Acquire(ctx context.Context, tx *gorm.DB) (*Allocation, error) {
	proxy, err := acquireProxy(ctx, tx)
	if err != nil {
		return nil, err
	}
	account, err := acquireAccount(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &Allocation{Proxy: *proxy, Account: *account}, nil
}

func acquireProxy(ctx context.Context, tx *gorm.DB) (*db.Proxy, error) {
	var proxy db.Proxy
	err := withRowLock(tx.WithContext(ctx)).
		Where("is_active = ? AND current_usage < max_concurrent", true).
		Order("current_usage ASC").
		Order("last_used_at ASC NULLS FIRST").
		Limit(1).
		First(&proxy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoProxyAvailable
		}
		return nil, fmt.Errorf("allocator: acquire proxy: %w", err)
	}

	if err := tx.WithContext(ctx).
		Model(&db.Proxy{}).
		Where("id = ?", proxy.ID).
		Updates(map[string]interface{}{
			"current_usage": gorm.Expr("current_usage + 1"),
			"last_used_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error; err != nil {
		return nil, fmt.Errorf("allocator: increment proxy usage: %w", err)
	}
	proxy.CurrentUsage++
	return &proxy, nil
}

func acquireAccount(ctx context.Context, tx *gorm.DB) (*db.Account, error) {
	var account db.Account
	err := withRowLock(tx.WithContext(ctx)).
		Where("is_active = ? AND is_valid = ? AND current_usage < max_concurrent", true, true).
		Order("current_usage ASC").
		Order("last_used_at ASC NULLS FIRST").
		Limit(1).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoAccountAvailable
		}
		return nil, fmt.Errorf("allocator: acquire account: %w", err)
	}

	if err := tx.WithContext(ctx).
		Model(&db.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"current_usage": gorm.Expr("current_usage + 1"),
			"last_used_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error; err != nil {
		return nil, fmt.Errorf("allocator: increment account usage: %w", err)
	}
	account.CurrentUsage++
	return &account, nil
}

// Release decrements both resources' usage counters back towards zero,
// floored at zero so a double-release (e.g. a retried fail callback) can
// never drive a counter negative.
func Release(ctx context.Context, tx *gorm.DB, proxyID, accountID *uuid.UUID) error {
	// CASE/WHEN rather than GREATEST() — GREATEST is a Postgres-only builtin
	// and this update must also run against the SQLite dev/test backend.
	const floorAtZero = "CASE WHEN current_usage > 0 THEN current_usage - 1 ELSE 0 END"

	if proxyID != nil {
		if err := tx.WithContext(ctx).
			Model(&db.Proxy{}).
			Where("id = ?", *proxyID).
			Update("current_usage", gorm.Expr(floorAtZero)).Error; err != nil {
			return fmt.Errorf("allocator: release proxy: %w", err)
		}
	}
	if accountID != nil {
		if err := tx.WithContext(ctx).
			Model(&db.Account{}).
			Where("id = ?", *accountID).
			Update("current_usage", gorm.Expr(floorAtZero)).Error; err != nil {
			return fmt.Errorf("allocator: release account: %w", err)
		}
	}
	return nil
}
