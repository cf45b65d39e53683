package agentregistry_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
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

func TestRegistry_RegisterHeartbeatAndOnline_WithRedis(t *testing.T) {
	gdb := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := repositories.NewAgentRepository(gdb)
	reg := agentregistry.New(repo, rdb, zap.NewNop())
	ctx := context.Background()

	_, err := reg.Register(ctx, "agent-1", "scout-1")
	require.NoError(t, err)

	view, err := reg.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.True(t, view.Online)
	assert.Equal(t, "scout-1", view.Name)

	require.NoError(t, reg.Heartbeat(ctx, "agent-1", "scanning", nil))
	views, total, err := reg.List(ctx, repositories.ListOptions{Limit: 10, Offset: 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, views, 1)
	assert.True(t, views[0].Online)
	assert.Equal(t, "scanning", views[0].Status)
}

func TestRegistry_WithoutRedisFallsBackToHeartbeatColumn(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewAgentRepository(gdb)
	reg := agentregistry.New(repo, nil, zap.NewNop())
	ctx := context.Background()

	_, err := reg.Register(ctx, "agent-2", "scout-2")
	require.NoError(t, err)

	view, err := reg.Get(ctx, "agent-2")
	require.NoError(t, err)
	assert.True(t, view.Online)
}

func TestRegistry_Deregister(t *testing.T) {
	gdb := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := repositories.NewAgentRepository(gdb)
	reg := agentregistry.New(repo, rdb, zap.NewNop())
	ctx := context.Background()

	_, err := reg.Register(ctx, "agent-3", "scout-3")
	require.NoError(t, err)

	require.NoError(t, reg.Deregister(ctx, "agent-3"))

	_, err = reg.Get(ctx, "agent-3")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	isMember, err := rdb.SIsMember(ctx, "agents:online", "agent-3").Result()
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestRegistry_MarkOffline(t *testing.T) {
	gdb := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := repositories.NewAgentRepository(gdb)
	reg := agentregistry.New(repo, rdb, zap.NewNop())
	ctx := context.Background()

	_, err := reg.Register(ctx, "agent-4", "scout-4")
	require.NoError(t, err)

	mr.Del("agent:heartbeat:agent-4")

	require.NoError(t, reg.MarkOffline(ctx, "agent-4"))

	isMember, err := rdb.SIsMember(ctx, "agents:online", "agent-4").Result()
	require.NoError(t, err)
	assert.False(t, isMember)
}
