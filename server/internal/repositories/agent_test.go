package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
)

func TestAgentRepository_UpsertIsIdempotent(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewAgentRepository(gdb)
	ctx := context.Background()

	now := time.Now()
	agent := &db.Agent{ID: "agent-1", Name: "scout-1", Status: "idle", LastHeartbeat: now, RegisteredAt: now}
	require.NoError(t, repo.Upsert(ctx, agent))

	// Re-registering the same agent ID must update, not duplicate.
	later := now.Add(time.Minute)
	agent2 := &db.Agent{ID: "agent-1", Name: "scout-1-renamed", Status: "busy", LastHeartbeat: later, RegisteredAt: now}
	require.NoError(t, repo.Upsert(ctx, agent2))

	fetched, err := repo.GetByID(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "scout-1-renamed", fetched.Name)
	assert.Equal(t, "busy", fetched.Status)

	_, total, err := repo.List(ctx, repositories.ListOptions{Limit: 10, Offset: 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestAgentRepository_UpdateHeartbeatAndListStale(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewAgentRepository(gdb)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Upsert(ctx, &db.Agent{ID: "stale-agent", Status: "idle", LastHeartbeat: old, RegisteredAt: old}))

	fresh := time.Now()
	require.NoError(t, repo.Upsert(ctx, &db.Agent{ID: "fresh-agent", Status: "idle", LastHeartbeat: fresh, RegisteredAt: fresh}))

	stale, err := repo.ListStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale-agent", stale[0].ID)

	require.NoError(t, repo.UpdateHeartbeat(ctx, "stale-agent", "scanning", nil, time.Now()))
	noLongerStale, err := repo.ListStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, noLongerStale)
}

func TestAgentRepository_Delete(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewAgentRepository(gdb)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.Upsert(ctx, &db.Agent{ID: "gone", Status: "idle", LastHeartbeat: now, RegisteredAt: now}))
	require.NoError(t, repo.Delete(ctx, "gone"))

	_, err := repo.GetByID(ctx, "gone")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
