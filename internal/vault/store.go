package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/subkeyhq/gateway/internal/db"
)

// ErrNotConfigured is returned when an owner has no stored master
// credential.
var ErrNotConfigured = errors.New("master credential not configured")

// Metadata describes a vault entry without exposing any secret material.
type Metadata struct {
	Configured bool   `json:"configured"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// Store persists one encrypted master credential per owner. Plaintext is
// produced only by Plaintext, for the proxy path; it is never returned
// across the management interface and never logged.
type Store struct {
	db     *db.DB
	cipher *Cipher
}

func NewStore(ctx context.Context, database *db.DB, cipher *Cipher) (*Store, error) {
	s := &Store{db: database, cipher: cipher}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize vault schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	// owner_id is the primary key: the single-row-per-owner invariant is
	// enforced by the schema, not by application checks.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS master_credentials (
		owner_id TEXT PRIMARY KEY,
		ciphertext TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create master_credentials table: %w", err)
	}
	return nil
}

// Set encrypts secret and upserts the owner's vault entry, overwriting
// any prior ciphertext and bumping updated_at.
func (s *Store) Set(ctx context.Context, ownerID, secret string) error {
	blob, err := s.cipher.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	INSERT INTO master_credentials (owner_id, ciphertext, created_at, updated_at)
	VALUES (%s, %s, %s, %s)
	ON CONFLICT (owner_id) DO UPDATE SET
		ciphertext = excluded.ciphertext,
		updated_at = excluded.updated_at
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4))

	if _, err := s.db.ExecContext(ctx, query, ownerID, blob, now, now); err != nil {
		return fmt.Errorf("failed to upsert master credential: %w", err)
	}
	return nil
}

// Get returns metadata only. A missing row is not an error: it reports
// Configured=false so management callers can render state.
func (s *Store) Get(ctx context.Context, ownerID string) (*Metadata, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT created_at, updated_at FROM master_credentials WHERE owner_id = %s`,
		s.db.Placeholder(1))

	row := s.db.QueryRowContext(ctx, query, ownerID)

	var meta Metadata
	if err := row.Scan(&meta.CreatedAt, &meta.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return &Metadata{Configured: false}, nil
		}
		return nil, err
	}
	meta.Configured = true
	return &meta, nil
}

// Delete removes the owner's vault entry. Deleting an absent entry is a
// no-op.
func (s *Store) Delete(ctx context.Context, ownerID string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`DELETE FROM master_credentials WHERE owner_id = %s`, s.db.Placeholder(1))

	if _, err := s.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to delete master credential: %w", err)
	}
	return nil
}

// Plaintext decrypts the owner's master credential for the proxy path.
// Returns ErrNotConfigured when no entry exists.
func (s *Store) Plaintext(ctx context.Context, ownerID string) (string, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT ciphertext FROM master_credentials WHERE owner_id = %s`,
		s.db.Placeholder(1))

	var blob string
	if err := s.db.QueryRowContext(ctx, query, ownerID).Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotConfigured
		}
		return "", err
	}

	return s.cipher.Decrypt(blob)
}
