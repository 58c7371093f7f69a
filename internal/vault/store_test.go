package vault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subkeyhq/gateway/internal/db"
	"github.com/subkeyhq/gateway/internal/logger"
	"github.com/subkeyhq/gateway/internal/vault"
)

func createTestStore(t *testing.T) *vault.Store {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, logger.Development(), db.Memory)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { database.Close() })

	cipher, err := vault.NewCipher("test-process-secret")
	require.NoError(t, err)

	store, err := vault.NewStore(ctx, database, cipher)
	require.NoError(t, err, "failed to create vault store")
	return store
}

func TestVaultStore(t *testing.T) {
	ctx := t.Context()
	store := createTestStore(t)

	t.Run("UnconfiguredOwner", func(t *testing.T) {
		meta, err := store.Get(ctx, "owner1")
		require.NoError(t, err)
		assert.False(t, meta.Configured)

		_, err = store.Plaintext(ctx, "owner1")
		assert.ErrorIs(t, err, vault.ErrNotConfigured)
	})

	t.Run("SetAndReadBack", func(t *testing.T) {
		err := store.Set(ctx, "owner1", "sk-upstream-one")
		require.NoError(t, err)

		meta, err := store.Get(ctx, "owner1")
		require.NoError(t, err)
		assert.True(t, meta.Configured)
		assert.NotEmpty(t, meta.CreatedAt)

		plaintext, err := store.Plaintext(ctx, "owner1")
		require.NoError(t, err)
		assert.Equal(t, "sk-upstream-one", plaintext)
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		err := store.Set(ctx, "owner1", "sk-upstream-two")
		require.NoError(t, err)

		plaintext, err := store.Plaintext(ctx, "owner1")
		require.NoError(t, err)
		assert.Equal(t, "sk-upstream-two", plaintext)
	})

	t.Run("IsolatedPerOwner", func(t *testing.T) {
		_, err := store.Plaintext(ctx, "owner2")
		assert.ErrorIs(t, err, vault.ErrNotConfigured)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, "owner1")
		require.NoError(t, err)

		meta, err := store.Get(ctx, "owner1")
		require.NoError(t, err)
		assert.False(t, meta.Configured)

		// Deleting an absent entry is a no-op.
		require.NoError(t, store.Delete(ctx, "owner1"))
	})
}
