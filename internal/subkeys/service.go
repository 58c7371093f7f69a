package subkeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/subkeyhq/gateway/internal/auditlog"
	"github.com/subkeyhq/gateway/internal/logger"
)

const bcryptCost = 10

// AuditAppender records lifecycle events against a subkey.
type AuditAppender interface {
	Append(ctx context.Context, subkeyID, eventType string, actorID *string) error
}

// Service implements the owner-facing subkey lifecycle: issue, list,
// update, revoke. Lifecycle events are written to the audit log together
// with the store mutation.
type Service struct {
	logger *logger.Logger
	store  *Store
	audit  AuditAppender
}

func NewService(log *logger.Logger, store *Store, audit AuditAppender) *Service {
	return &Service{
		logger: log,
		store:  store,
		audit:  audit,
	}
}

// Issue mints a new subkey for the owner. The returned raw secret exists
// only in this response; the store keeps its bcrypt hash.
func (s *Service) Issue(ctx context.Context, ownerID, name string, tokenLimit int64) (*Subkey, string, error) {
	if tokenLimit < 0 {
		return nil, "", ErrNegativeLimit
	}

	rawSecret, err := generateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawSecret), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash secret: %w", err)
	}

	now := time.Now()
	key := &Subkey{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		KeyHash:    string(hash),
		TokenLimit: tokenLimit,
		ResetAt:    now.Add(ResetWindow),
		CreatedAt:  now,
	}

	if err := s.store.Insert(ctx, key); err != nil {
		return nil, "", err
	}

	s.appendAudit(ctx, key.ID, auditlog.EventCreated, &ownerID)

	return key, rawSecret, nil
}

// List returns the owner's subkeys. Hashes never leave the store layer's
// JSON boundary.
func (s *Service) List(ctx context.Context, ownerID string) ([]Subkey, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Update renames and/or re-limits a non-revoked subkey.
func (s *Service) Update(ctx context.Context, ownerID, id string, name *string, tokenLimit *int64) (*Subkey, error) {
	if tokenLimit != nil && *tokenLimit < 0 {
		return nil, ErrNegativeLimit
	}

	key, err := s.store.UpdateDetails(ctx, ownerID, id, name, tokenLimit)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, key.ID, auditlog.EventUpdated, &ownerID)

	return key, nil
}

// Revoke terminates a subkey. Revocation is permanent; repeated calls
// fail with ErrSubkeyRevoked.
func (s *Service) Revoke(ctx context.Context, ownerID, id string) (*Subkey, error) {
	key, err := s.store.Revoke(ctx, ownerID, id, time.Now())
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, key.ID, auditlog.EventRevoked, &ownerID)

	return key, nil
}

// appendAudit records a lifecycle event. A failed append never rolls
// back the committed mutation; it is surfaced in the logs instead.
func (s *Service) appendAudit(ctx context.Context, subkeyID, event string, actorID *string) {
	if err := s.audit.Append(ctx, subkeyID, event, actorID); err != nil {
		s.logger.Error("Failed to append audit entry",
			"subkey", subkeyID,
			"event", event,
			"error", err,
		)
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}
