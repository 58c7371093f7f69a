// Package auditlog appends immutable subkey lifecycle and usage events.
// Entries are never updated or deleted.
package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/subkeyhq/gateway/internal/db"
)

// Event types recorded against a subkey.
const (
	EventCreated        = "created"
	EventUpdated        = "updated"
	EventRevoked        = "revoked"
	EventRequestSuccess = "request_success"
)

// timeLayout keeps the fractional seconds fixed-width so the lexicographic
// ORDER BY over the TEXT column matches time order. RFC3339Nano trims
// trailing zeros and would not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one immutable audit record, decorated for display with the
// subkey name and the acting principal's email. ActorEmail is empty for
// automated usage events.
type Entry struct {
	ID         string `json:"id"`
	SubkeyID   string `json:"subkey_id"`
	SubkeyName string `json:"subkey_name,omitempty"`
	EventType  string `json:"event_type"`
	ActorEmail string `json:"actor_email,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type Store struct {
	db *db.DB
}

func NewStore(ctx context.Context, database *db.DB) (*Store, error) {
	s := &Store{db: database}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize audit log schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS usage_logs (
		id TEXT PRIMARY KEY,
		subkey_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor_id TEXT,
		created_at TEXT NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create usage_logs table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_usage_logs_subkey ON usage_logs(subkey_id)`); err != nil {
		return fmt.Errorf("failed to create subkey index: %w", err)
	}

	return nil
}

// Append writes one immutable entry. actorID is nil for automated usage
// events.
func (s *Store) Append(ctx context.Context, subkeyID, eventType string, actorID *string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	INSERT INTO usage_logs (id, subkey_id, event_type, actor_id, created_at)
	VALUES (%s, %s, %s, %s, %s)
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4), s.db.Placeholder(5))

	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), subkeyID, eventType, actorID, now); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByOwner returns entries for all of the owner's subkeys, newest
// first, decorated with subkey names and actor emails.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Entry, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	SELECT l.id, l.subkey_id, COALESCE(k.name, ''), l.event_type, COALESCE(u.email, ''), l.created_at
	FROM usage_logs l
	JOIN subkeys k ON k.id = l.subkey_id
	LEFT JOIN users u ON u.id = l.actor_id
	WHERE k.owner_id = %s
	ORDER BY l.created_at DESC
	`, s.db.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SubkeyID, &e.SubkeyName, &e.EventType, &e.ActorEmail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
