package allocator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconmc/server/internal/allocator"
	"reconmc/server/internal/db"
)

// newTestDB mirrors the repositories package's test harness: a real sqlite
// in-memory database migrated with the production schema. Row locking is a
// no-op on this dialect (see allocator.withRowLock), so these tests only
// exercise the non-locking code path — that's expected on sqlite and is not
// worked around here.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require.NoError(t, db.InitEncryption(make([]byte, 32)))

	gdb, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger:   zap.NewNop(),
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	return gdb
}

func TestAcquire_PicksLeastLoadedAndIncrementsUsage(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 2, CurrentUsage: 1, IsActive: true}).Error)
	leastLoaded := &db.Proxy{Host: "2.2.2.2", Port: 1080, MaxConcurrent: 2, CurrentUsage: 0, IsActive: true}
	require.NoError(t, gdb.Create(leastLoaded).Error)

	require.NoError(t, gdb.Create(&db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, CurrentUsage: 0, IsActive: true, IsValid: true}).Error)

	var alloc *allocator.Allocation
	err := gdb.Transaction(func(tx *gorm.DB) error {
		a, err := allocator.Acquire(ctx, tx)
		alloc = a
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, leastLoaded.ID, alloc.Proxy.ID)
	assert.Equal(t, 1, alloc.Proxy.CurrentUsage)
	assert.Equal(t, 1, alloc.Account.CurrentUsage)

	var persisted db.Proxy
	require.NoError(t, gdb.First(&persisted, "id = ?", leastLoaded.ID).Error)
	assert.Equal(t, 1, persisted.CurrentUsage)
}

func TestAcquire_TiesBreakOnLeastRecentlyUsed(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	recentlyUsed := time.Now().Add(-1 * time.Minute)
	neverUsed := &db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 2, CurrentUsage: 0, IsActive: true}
	require.NoError(t, gdb.Create(neverUsed).Error)
	require.NoError(t, gdb.Create(&db.Proxy{Host: "2.2.2.2", Port: 1080, MaxConcurrent: 2, CurrentUsage: 0, IsActive: true, LastUsedAt: &recentlyUsed}).Error)
	require.NoError(t, gdb.Create(&db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, CurrentUsage: 0, IsActive: true, IsValid: true}).Error)

	var alloc *allocator.Allocation
	err := gdb.Transaction(func(tx *gorm.DB) error {
		a, err := allocator.Acquire(ctx, tx)
		alloc = a
		return err
	})
	require.NoError(t, err)
	// Both proxies are equally loaded (currentUsage 0); the one with a null
	// lastUsedAt (never used) sorts first over one used a minute ago.
	assert.Equal(t, neverUsed.ID, alloc.Proxy.ID)
}

func TestAcquire_NoProxyAvailable(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 1, CurrentUsage: 1, IsActive: true}).Error)
	require.NoError(t, gdb.Create(&db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, CurrentUsage: 0, IsActive: true, IsValid: true}).Error)

	err := gdb.Transaction(func(tx *gorm.DB) error {
		_, err := allocator.Acquire(ctx, tx)
		return err
	})
	assert.ErrorIs(t, err, allocator.ErrNoProxyAvailable)
}

func TestAcquire_NoAccountAvailable(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 1, CurrentUsage: 0, IsActive: true}).Error)
	require.NoError(t, gdb.Create(&db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, CurrentUsage: 0, IsActive: true, IsValid: false}).Error)

	err := gdb.Transaction(func(tx *gorm.DB) error {
		_, err := allocator.Acquire(ctx, tx)
		return err
	})
	assert.ErrorIs(t, err, allocator.ErrNoAccountAvailable)
}

func TestRelease_FloorsAtZero(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	proxy := &db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 2, CurrentUsage: 0, IsActive: true}
	require.NoError(t, gdb.Create(proxy).Error)
	account := &db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, CurrentUsage: 0, IsActive: true, IsValid: true}
	require.NoError(t, gdb.Create(account).Error)

	err := gdb.Transaction(func(tx *gorm.DB) error {
		return allocator.Release(ctx, tx, &proxy.ID, &account.ID)
	})
	require.NoError(t, err)

	var persistedProxy db.Proxy
	require.NoError(t, gdb.First(&persistedProxy, "id = ?", proxy.ID).Error)
	assert.Equal(t, 0, persistedProxy.CurrentUsage)

	var persistedAccount db.Account
	require.NoError(t, gdb.First(&persistedAccount, "id = ?", account.ID).Error)
	assert.Equal(t, 0, persistedAccount.CurrentUsage)
}
