package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subkeyhq/gateway/internal/accounts"
	"github.com/subkeyhq/gateway/internal/db"
	"github.com/subkeyhq/gateway/internal/logger"
)

func createTestStore(t *testing.T) *accounts.Store {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, logger.Development(), db.Memory)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { database.Close() })

	store, err := accounts.NewStore(ctx, database)
	require.NoError(t, err, "failed to create account store")
	return store
}

func TestAccountStore(t *testing.T) {
	ctx := t.Context()
	store := createTestStore(t)

	t.Run("Create", func(t *testing.T) {
		account, err := store.Create(ctx, "Owner@Example.com", "hash1")
		require.NoError(t, err)
		assert.NotEmpty(t, account.ID)
		assert.Equal(t, "owner@example.com", account.Email, "emails are normalized")
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := store.Create(ctx, "owner@example.com", "hash2")
		assert.ErrorIs(t, err, accounts.ErrEmailTaken)
	})

	t.Run("GetByEmail", func(t *testing.T) {
		account, err := store.GetByEmail(ctx, "owner@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash1", account.PasswordHash())
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := store.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
	})
}

func TestSessionManager(t *testing.T) {
	sessions := accounts.NewSessionManager("test-jwt-secret", time.Hour)
	account := &accounts.Account{ID: "acc-1", Email: "owner@example.com"}

	token, err := sessions.Issue(account)
	require.NoError(t, err)

	principal, err := sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", principal.ID)
	assert.Equal(t, "owner@example.com", principal.Email)

	t.Run("WrongSecret", func(t *testing.T) {
		other := accounts.NewSessionManager("different-secret", time.Hour)
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, accounts.ErrInvalidSession)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := sessions.Verify("not-a-jwt")
		assert.ErrorIs(t, err, accounts.ErrInvalidSession)
	})

	t.Run("Expired", func(t *testing.T) {
		shortLived := accounts.NewSessionManager("test-jwt-secret", -time.Minute)
		expired, err := shortLived.Issue(account)
		require.NoError(t, err)

		_, err = sessions.Verify(expired)
		assert.ErrorIs(t, err, accounts.ErrInvalidSession)
	})
}
