package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/subkeyhq/gateway/internal/db"
)

// Store persists owner accounts.
type Store struct {
	db *db.DB
}

func NewStore(ctx context.Context, database *db.DB) (*Store, error) {
	s := &Store{db: database}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize accounts schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	// TEXT timestamps keep the schema portable across SQLite and PostgreSQL.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// Create inserts a new account. Returns ErrEmailTaken when the email is
// already registered.
func (s *Store) Create(ctx context.Context, email, passwordHash string) (*Account, error) {
	account := &Account{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		passwordHash: passwordHash,
	}

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`INSERT INTO users (id, email, password_hash, created_at) VALUES (%s, %s, %s, %s)`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4))

	if _, err := s.db.ExecContext(ctx, query, account.ID, account.Email, account.passwordHash, account.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return account, nil
}

// GetByEmail returns the account registered under email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT id, email, password_hash, created_at FROM users WHERE email = %s`,
		s.db.Placeholder(1))

	row := s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email)))

	var account Account
	if err := row.Scan(&account.ID, &account.Email, &account.passwordHash, &account.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// PasswordHash exposes the stored hash for credential verification only.
func (a *Account) PasswordHash() string {
	return a.passwordHash
}

// isUniqueViolation matches unique-constraint failures from both backends.
// PostgreSQL reports SQLSTATE 23505 on a typed error; go-sqlite3 exposes
// only the message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
