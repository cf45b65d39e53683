package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconmc/server/internal/db"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/repositories"
	"reconmc/shared/types"
)

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

func newTestService(t *testing.T) (*queue.Service, *gorm.DB) {
	gdb := newTestDB(t)
	queueRepo := repositories.NewScanQueueRepository(gdb)
	serverRepo := repositories.NewServerRepository(gdb)
	taskLogs := repositories.NewTaskLogRepository(gdb)
	accounts := repositories.NewAccountRepository(gdb)
	svc := queue.New(gdb, nil, queueRepo, serverRepo, taskLogs, accounts, zap.NewNop())
	return svc, gdb
}

func seedProxyAndAccount(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	require.NoError(t, gdb.Create(&db.Proxy{Host: "1.1.1.1", Port: 1080, MaxConcurrent: 1, IsActive: true}).Error)
	require.NoError(t, gdb.Create(&db.Account{Type: "microsoft", Username: "a", MaxConcurrent: 1, IsActive: true, IsValid: true}).Error)
}

func TestService_EnqueueRejectsDuplicateTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	target := queue.Target{ServerAddress: "mc.example.com", ResolvedIP: "203.0.113.1", Port: 25565}
	_, err := svc.Enqueue(ctx, target)
	require.NoError(t, err)

	_, err = svc.Enqueue(ctx, target)
	assert.ErrorIs(t, err, repositories.ErrConflict)
}

func TestService_ClaimAssignsProxyAndAccount(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	seedProxyAndAccount(t, gdb)

	_, err := svc.Enqueue(ctx, queue.Target{ServerAddress: "a", ResolvedIP: "203.0.113.2", Port: 25565})
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "processing", claimed.Row.Status)
	assert.Equal(t, "agent-1", claimed.Row.AssignedAgentID)
	assert.NotEqual(t, claimed.Proxy.ID.String(), "")
	assert.NotEqual(t, claimed.Account.ID.String(), "")
}

func TestService_ClaimReturnsNilWhenEmpty(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	seedProxyAndAccount(t, gdb)

	claimed, err := svc.Claim(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestService_CompleteReleasesResourcesAndUpsertsServer(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	seedProxyAndAccount(t, gdb)

	_, err := svc.Enqueue(ctx, queue.Target{ServerAddress: "mc.example.com", ResolvedIP: "203.0.113.3", Port: 25565})
	require.NoError(t, err)
	claimed, err := svc.Claim(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	result := types.ScanResult{}
	require.NoError(t, svc.Complete(ctx, claimed.Row.ID, result, "new-access", "new-refresh"))

	// The queue row is deleted on finalize (spec §4.5/§8), not left completed.
	_, err = svc.Status(ctx, claimed.Row.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	var proxy db.Proxy
	require.NoError(t, gdb.First(&proxy, "id = ?", claimed.Proxy.ID).Error)
	assert.Equal(t, 0, proxy.CurrentUsage)

	var account db.Account
	require.NoError(t, gdb.First(&account, "id = ?", claimed.Account.ID).Error)
	assert.Equal(t, 0, account.CurrentUsage)
	assert.EqualValues(t, "new-access", account.AccessToken)
	assert.EqualValues(t, "new-refresh", account.RefreshToken)

	serverRepo := repositories.NewServerRepository(gdb)
	server, err := serverRepo.GetByTarget(ctx, "203.0.113.3", 25565)
	require.NoError(t, err)
	assert.EqualValues(t, 1, server.ScanCount)

	var history []types.ScanHistoryEntry
	require.NoError(t, json.Unmarshal([]byte(server.ScanHistory), &history))
	require.Len(t, history, 1)
	assert.GreaterOrEqual(t, history[0].DurationMs, int64(0))
	assert.Empty(t, history[0].ErrorMessage)
}

func TestService_FailIsTerminalAndWritesHistory(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	seedProxyAndAccount(t, gdb)

	_, err := svc.Enqueue(ctx, queue.Target{ServerAddress: "a", ResolvedIP: "203.0.113.4", Port: 25565})
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, svc.Fail(ctx, claimed.Row.ID, "connection refused"))

	// The row is deleted, not requeued to pending.
	_, err = svc.Status(ctx, claimed.Row.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	var proxy db.Proxy
	require.NoError(t, gdb.First(&proxy, "id = ?", claimed.Proxy.ID).Error)
	assert.Equal(t, 0, proxy.CurrentUsage)

	serverRepo := repositories.NewServerRepository(gdb)
	server, err := serverRepo.GetByTarget(ctx, "203.0.113.4", 25565)
	require.NoError(t, err)

	var history []types.ScanHistoryEntry
	require.NoError(t, json.Unmarshal([]byte(server.ScanHistory), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "connection refused", history[0].ErrorMessage)
	assert.Nil(t, history[0].Result)
	assert.Empty(t, server.LatestResult)
}

func TestService_FailIsIdempotent(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	seedProxyAndAccount(t, gdb)

	_, err := svc.Enqueue(ctx, queue.Target{ServerAddress: "a", ResolvedIP: "203.0.113.5", Port: 25565})
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, svc.Fail(ctx, claimed.Row.ID, "connection refused"))
	// A second fail (or a racing complete) on an already-finalized row is a
	// silent no-op — it must not re-release resources or double-write history.
	require.NoError(t, svc.Fail(ctx, claimed.Row.ID, "connection refused"))
	require.NoError(t, svc.Complete(ctx, claimed.Row.ID, types.ScanResult{}, "", ""))

	serverRepo := repositories.NewServerRepository(gdb)
	server, err := serverRepo.GetByTarget(ctx, "203.0.113.5", 25565)
	require.NoError(t, err)
	assert.EqualValues(t, 1, server.ScanCount)

	var history []types.ScanHistoryEntry
	require.NoError(t, json.Unmarshal([]byte(server.ScanHistory), &history))
	assert.Len(t, history, 1)
}
