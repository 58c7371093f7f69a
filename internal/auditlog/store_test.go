package auditlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subkeyhq/gateway/internal/accounts"
	"github.com/subkeyhq/gateway/internal/auditlog"
	"github.com/subkeyhq/gateway/internal/db"
	"github.com/subkeyhq/gateway/internal/logger"
	"github.com/subkeyhq/gateway/internal/subkeys"
)

type fixture struct {
	accounts *accounts.Store
	subkeys  *subkeys.Store
	logs     *auditlog.Store
}

// createFixture builds all three stores on one database so ListByOwner
// can join entries to subkey names and actor emails.
func createFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	database, err := db.OpenSQLite(ctx, logger.Development(), db.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	accountStore, err := accounts.NewStore(ctx, database)
	require.NoError(t, err)
	subkeyStore, err := subkeys.NewStore(ctx, database)
	require.NoError(t, err)
	logStore, err := auditlog.NewStore(ctx, database)
	require.NoError(t, err)

	return &fixture{accounts: accountStore, subkeys: subkeyStore, logs: logStore}
}

func (f *fixture) insertKey(t *testing.T, ownerID, name string) *subkeys.Subkey {
	t.Helper()
	now := time.Now()
	key := &subkeys.Subkey{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		KeyHash:   "irrelevant",
		ResetAt:   now.Add(subkeys.ResetWindow),
		CreatedAt: now,
	}
	require.NoError(t, f.subkeys.Insert(t.Context(), key))
	return key
}

func TestAuditLog(t *testing.T) {
	ctx := t.Context()
	f := createFixture(t)

	owner, err := f.accounts.Create(ctx, "owner@example.com", "hash")
	require.NoError(t, err)

	key := f.insertKey(t, owner.ID, "ci key")
	otherKey := f.insertKey(t, "someone-else", "foreign key")

	// Lifecycle event with an acting principal, then an automated usage
	// event without one.
	require.NoError(t, f.logs.Append(ctx, key.ID, auditlog.EventCreated, &owner.ID))
	require.NoError(t, f.logs.Append(ctx, key.ID, auditlog.EventRequestSuccess, nil))
	require.NoError(t, f.logs.Append(ctx, otherKey.ID, auditlog.EventCreated, nil))

	entries, err := f.logs.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2, "foreign subkeys are excluded")

	// Newest first.
	assert.Equal(t, auditlog.EventRequestSuccess, entries[0].EventType)
	assert.Equal(t, auditlog.EventCreated, entries[1].EventType)

	// Decorations: subkey name always, actor email only for owner actions.
	for _, e := range entries {
		assert.Equal(t, "ci key", e.SubkeyName)
	}
	assert.Empty(t, entries[0].ActorEmail)
	assert.Equal(t, "owner@example.com", entries[1].ActorEmail)
}

func TestAuditLogOrderingWithinSecond(t *testing.T) {
	ctx := t.Context()
	f := createFixture(t)

	owner, err := f.accounts.Create(ctx, "owner@example.com", "hash")
	require.NoError(t, err)
	key := f.insertKey(t, owner.ID, "busy key")

	// A burst of appends lands fractions of a second apart; newest-first
	// must hold entry by entry regardless of sub-second digits.
	events := []string{
		auditlog.EventCreated,
		auditlog.EventRequestSuccess,
		auditlog.EventRequestSuccess,
		auditlog.EventUpdated,
		auditlog.EventRequestSuccess,
		auditlog.EventRevoked,
	}
	for _, event := range events {
		require.NoError(t, f.logs.Append(ctx, key.ID, event, nil))
	}

	entries, err := f.logs.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(events))

	for i, e := range entries {
		assert.Equal(t, events[len(events)-1-i], e.EventType, "entry %d", i)
	}

	// Timestamps are fixed-width so string order equals time order.
	for _, e := range entries {
		assert.Len(t, e.CreatedAt, len("2006-01-02T15:04:05.000000000Z"))
	}
}

func TestAuditLogEmpty(t *testing.T) {
	ctx := t.Context()
	f := createFixture(t)

	entries, err := f.logs.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
