package subkeys_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/subkeyhq/gateway/internal/logger"
	"github.com/subkeyhq/gateway/internal/subkeys"
)

type recordedEvent struct {
	subkeyID  string
	eventType string
	actorID   *string
}

type auditRecorder struct {
	events []recordedEvent
}

func (r *auditRecorder) Append(_ context.Context, subkeyID, eventType string, actorID *string) error {
	r.events = append(r.events, recordedEvent{subkeyID: subkeyID, eventType: eventType, actorID: actorID})
	return nil
}

func createTestService(t *testing.T) (*subkeys.Service, *auditRecorder) {
	t.Helper()
	store := createTestStore(t)
	audit := &auditRecorder{}
	return subkeys.NewService(logger.Development(), store, audit), audit
}

func TestServiceIssue(t *testing.T) {
	ctx := t.Context()
	service, audit := createTestService(t)

	key, rawSecret, err := service.Issue(ctx, "owner1", "ci key", 1000)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawSecret, subkeys.SecretPrefix))
	assert.Len(t, rawSecret, len(subkeys.SecretPrefix)+64)

	// The stored hash verifies against the returned secret and is not
	// the secret itself.
	assert.NotEqual(t, rawSecret, key.KeyHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawSecret)))

	assert.Equal(t, int64(1000), key.TokenLimit)
	assert.Equal(t, int64(0), key.TokensUsed)
	assert.False(t, key.Revoked)

	require.Len(t, audit.events, 1)
	assert.Equal(t, "created", audit.events[0].eventType)
	require.NotNil(t, audit.events[0].actorID)
	assert.Equal(t, "owner1", *audit.events[0].actorID)
}

func TestServiceIssueDistinctSecrets(t *testing.T) {
	ctx := t.Context()
	service, _ := createTestService(t)

	_, first, err := service.Issue(ctx, "owner1", "", 0)
	require.NoError(t, err)
	_, second, err := service.Issue(ctx, "owner1", "", 0)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestServiceIssueNegativeLimit(t *testing.T) {
	ctx := t.Context()
	service, audit := createTestService(t)

	_, _, err := service.Issue(ctx, "owner1", "bad", -5)
	assert.ErrorIs(t, err, subkeys.ErrNegativeLimit)
	assert.Empty(t, audit.events)
}

func TestServiceUpdateAndRevoke(t *testing.T) {
	ctx := t.Context()
	service, audit := createTestService(t)

	key, _, err := service.Issue(ctx, "owner1", "original", 100)
	require.NoError(t, err)

	name := "renamed"
	updated, err := service.Update(ctx, "owner1", key.ID, &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	negative := int64(-1)
	_, err = service.Update(ctx, "owner1", key.ID, nil, &negative)
	assert.ErrorIs(t, err, subkeys.ErrNegativeLimit)

	revoked, err := service.Revoke(ctx, "owner1", key.ID)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)

	_, err = service.Revoke(ctx, "owner1", key.ID)
	assert.ErrorIs(t, err, subkeys.ErrSubkeyRevoked)

	_, err = service.Update(ctx, "owner1", key.ID, &name, nil)
	assert.ErrorIs(t, err, subkeys.ErrSubkeyRevoked)

	var events []string
	for _, e := range audit.events {
		events = append(events, e.eventType)
	}
	assert.Equal(t, []string{"created", "updated", "revoked"}, events)
}
