package subkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/subkeyhq/gateway/internal/db"
)

// Store persists subkey records. Every counter mutation is a single
// conditional UPDATE scoped by subkey id so concurrent requests cannot
// lose updates; there is no read-modify-write anywhere in this file.
type Store struct {
	db *db.DB
}

func NewStore(ctx context.Context, database *db.DB) (*Store, error) {
	s := &Store{db: database}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize subkeys schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	// key_hash is deliberately not indexed: hashes are salted, so no
	// plaintext-derivable lookup exists. TEXT timestamps keep the schema
	// portable across SQLite and PostgreSQL.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS subkeys (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT,
		key_hash TEXT NOT NULL,
		token_limit INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0,
		reset_at TEXT NOT NULL,
		revoked INTEGER NOT NULL DEFAULT 0,
		revoked_at TEXT,
		created_at TEXT NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create subkeys table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_subkeys_owner ON subkeys(owner_id)`); err != nil {
		return fmt.Errorf("failed to create owner index: %w", err)
	}

	return nil
}

const subkeyColumns = `id, owner_id, COALESCE(name, ''), key_hash, token_limit, tokens_used, usage_count, reset_at, revoked, revoked_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubkey(row rowScanner) (*Subkey, error) {
	var (
		k         Subkey
		resetAt   string
		revoked   int64
		revokedAt sql.NullString
		createdAt string
	)

	err := row.Scan(&k.ID, &k.OwnerID, &k.Name, &k.KeyHash, &k.TokenLimit,
		&k.TokensUsed, &k.UsageCount, &resetAt, &revoked, &revokedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	k.Revoked = revoked != 0

	if k.ResetAt, err = time.Parse(time.RFC3339, resetAt); err != nil {
		return nil, fmt.Errorf("failed to parse reset_at for subkey %s: %w", k.ID, err)
	}
	if k.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for subkey %s: %w", k.ID, err)
	}
	if revokedAt.Valid {
		t, err := time.Parse(time.RFC3339, revokedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse revoked_at for subkey %s: %w", k.ID, err)
		}
		k.RevokedAt = &t
	}

	return &k, nil
}

// Insert persists a new subkey. The insert is guarded by the active-key
// quota in the same statement, so concurrent issues cannot push an owner
// past MaxActivePerOwner. Returns ErrQuotaExceeded when no row was
// created.
func (s *Store) Insert(ctx context.Context, k *Subkey) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	INSERT INTO subkeys (id, owner_id, name, key_hash, token_limit, tokens_used, usage_count, reset_at, revoked, created_at)
	SELECT %s, %s, %s, %s, %s, 0, 0, %s, 0, %s
	WHERE (SELECT COUNT(*) FROM subkeys WHERE owner_id = %s AND revoked = 0) < %s
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4),
		s.db.Placeholder(5), s.db.Placeholder(6), s.db.Placeholder(7), s.db.Placeholder(8), s.db.Placeholder(9))

	result, err := s.db.ExecContext(ctx, query,
		k.ID, k.OwnerID, k.Name, k.KeyHash, k.TokenLimit,
		k.ResetAt.UTC().Format(time.RFC3339), k.CreatedAt.UTC().Format(time.RFC3339),
		k.OwnerID, MaxActivePerOwner)
	if err != nil {
		return fmt.Errorf("failed to insert subkey: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// ListByOwner returns all of the owner's subkeys, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Subkey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM subkeys WHERE owner_id = %s ORDER BY created_at DESC`,
		subkeyColumns, s.db.Placeholder(1))

	return s.queryMany(ctx, query, ownerID)
}

// ListActive returns every non-revoked subkey across all owners. Used by
// the matcher; scan order is unspecified and callers must not rely on it.
func (s *Store) ListActive(ctx context.Context) ([]Subkey, error) {
	query := fmt.Sprintf(`SELECT %s FROM subkeys WHERE revoked = 0`, subkeyColumns)

	return s.queryMany(ctx, query)
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]Subkey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []Subkey{}
	for rows.Next() {
		k, err := scanSubkey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

// Get returns the owner's subkey by id, or ErrSubkeyNotFound.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*Subkey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM subkeys WHERE id = %s AND owner_id = %s`,
		subkeyColumns, s.db.Placeholder(1), s.db.Placeholder(2))

	k, err := scanSubkey(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubkeyNotFound
		}
		return nil, err
	}
	return k, nil
}

// GetByID returns a subkey regardless of owner. Internal to the proxy
// path; management callers go through Get.
func (s *Store) GetByID(ctx context.Context, id string) (*Subkey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM subkeys WHERE id = %s`, subkeyColumns, s.db.Placeholder(1))

	k, err := scanSubkey(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubkeyNotFound
		}
		return nil, err
	}
	return k, nil
}

// UpdateDetails renames and/or re-limits a non-revoked subkey. Nil
// fields are left unchanged. Returns ErrSubkeyRevoked when the record
// exists but is terminal, ErrSubkeyNotFound when it is not the owner's.
func (s *Store) UpdateDetails(ctx context.Context, ownerID, id string, name *string, tokenLimit *int64) (*Subkey, error) {
	sets := []string{}
	args := []any{}
	idx := 1

	if name != nil {
		sets = append(sets, fmt.Sprintf("name = %s", s.db.Placeholder(idx)))
		args = append(args, *name)
		idx++
	}
	if tokenLimit != nil {
		sets = append(sets, fmt.Sprintf("token_limit = %s", s.db.Placeholder(idx)))
		args = append(args, *tokenLimit)
		idx++
	}
	if len(sets) == 0 {
		return s.Get(ctx, ownerID, id)
	}

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`UPDATE subkeys SET %s WHERE id = %s AND owner_id = %s AND revoked = 0`,
		strings.Join(sets, ", "), s.db.Placeholder(idx), s.db.Placeholder(idx+1))
	args = append(args, id, ownerID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update subkey: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, s.classifyMiss(ctx, ownerID, id)
	}

	return s.Get(ctx, ownerID, id)
}

// Revoke transitions the owner's subkey to its terminal state. The
// update is conditioned on revoked = 0, so a second revoke affects no
// rows and fails instead of silently succeeding.
func (s *Store) Revoke(ctx context.Context, ownerID, id string, now time.Time) (*Subkey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`UPDATE subkeys SET revoked = 1, revoked_at = %s WHERE id = %s AND owner_id = %s AND revoked = 0`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3))

	result, err := s.db.ExecContext(ctx, query, now.UTC().Format(time.RFC3339), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke subkey: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, s.classifyMiss(ctx, ownerID, id)
	}

	return s.Get(ctx, ownerID, id)
}

// classifyMiss distinguishes "not the owner's subkey" from "already
// revoked" after a conditional update affected no rows.
func (s *Store) classifyMiss(ctx context.Context, ownerID, id string) error {
	k, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if k.Revoked {
		return ErrSubkeyRevoked
	}
	return ErrSubkeyNotFound
}

// ResetIfDue applies the lazy window reset: when now is past reset_at,
// counters are zeroed and the window advances to now + ResetWindow, in
// one conditional update. Reports whether a reset was applied. Racing
// callers are safe: the reset_at condition lets only one update land.
func (s *Store) ResetIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE subkeys SET tokens_used = 0, usage_count = 0, reset_at = %s
	WHERE id = %s AND revoked = 0 AND reset_at < %s
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3))

	newReset := now.Add(ResetWindow).UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, query, newReset, id, now.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to reset usage window: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// CommitUsage atomically adds the measured cost to tokens_used and bumps
// usage_count, with the admission predicate embedded in the UPDATE: the
// commit lands only if the resulting total stays within a positive limit
// (a zero limit always admits). Returns ErrBudgetExceeded, ErrSubkeyRevoked
// or ErrSubkeyNotFound when the commit did not land.
func (s *Store) CommitUsage(ctx context.Context, id string, cost int64) (*Totals, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE subkeys SET tokens_used = tokens_used + %s, usage_count = usage_count + 1
	WHERE id = %s AND revoked = 0 AND (token_limit = 0 OR tokens_used + %s <= token_limit)
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3))

	result, err := s.db.ExecContext(ctx, query, cost, id, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to commit usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		k, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if k.Revoked {
			return nil, ErrSubkeyRevoked
		}
		return nil, ErrBudgetExceeded
	}

	k, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Totals{TokensUsed: k.TokensUsed, UsageCount: k.UsageCount, ResetAt: k.ResetAt}, nil
}
