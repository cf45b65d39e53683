package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
)

func TestProxyRepository_CreateGetUpdateDelete(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewProxyRepository(gdb)
	ctx := context.Background()

	proxy := &db.Proxy{
		Host:          "10.0.0.1",
		Port:          1080,
		Username:      "op",
		Password:      db.EncryptedString("swordfish"),
		Protocol:      "socks5",
		MaxConcurrent: 2,
		IsActive:      true,
	}
	require.NoError(t, repo.Create(ctx, proxy))
	assert.NotEqual(t, "", proxy.ID.String())

	fetched, err := repo.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", fetched.Host)
	assert.EqualValues(t, "swordfish", fetched.Password)

	fetched.MaxConcurrent = 5
	require.NoError(t, repo.Update(ctx, fetched))

	again, err := repo.GetByID(ctx, proxy.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, again.MaxConcurrent)

	items, total, err := repo.List(ctx, repositories.ListOptions{Limit: 10, Offset: 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, items, 1)

	require.NoError(t, repo.Delete(ctx, proxy.ID))
	_, err = repo.GetByID(ctx, proxy.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestProxyRepository_GetByIDNotFound(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewProxyRepository(gdb)

	_, err := repo.GetByID(context.Background(), mustRandomUUID(t))
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
