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

func TestAccountRepository_CreateAndUpdateValidation(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewAccountRepository(gdb)
	ctx := context.Background()

	account := &db.Account{
		Type:          "microsoft",
		Username:      "bot@example.com",
		AccessToken:   db.EncryptedString("access-1"),
		RefreshToken:  db.EncryptedString("refresh-1"),
		MaxConcurrent: 1,
		IsActive:      true,
		IsValid:       true,
	}
	require.NoError(t, repo.Create(ctx, account))

	now := time.Now().Truncate(time.Second)
	require.NoError(t, repo.UpdateValidation(ctx, account.ID, false, "token expired", now))

	fetched, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, fetched.IsValid)
	assert.Equal(t, "token expired", fetched.LastValidationError)
	require.NotNil(t, fetched.LastValidatedAt)
	assert.WithinDuration(t, now, *fetched.LastValidatedAt, time.Second)
}

func TestAccountRepository_List(t *testing.T) {
	gdb := newTestDB(t)
	repo := repositories.NewAccountRepository(gdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &db.Account{
			Type:          "microsoft",
			Username:      "bot",
			RefreshToken:  db.EncryptedString("r"),
			MaxConcurrent: 1,
			IsActive:      true,
			IsValid:       true,
		}))
	}

	items, total, err := repo.List(ctx, repositories.ListOptions{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 2)
}
