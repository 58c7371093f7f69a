package subkeys

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Matcher resolves a presented raw secret to a live subkey record.
//
// Hashes are salted, so there is no plaintext-derivable index: matching
// is an explicit linear verify-loop over the non-revoked records. The
// scan is read-only and its order is unspecified.
type Matcher struct {
	store *Store
}

func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns the first record whose hash verifies against rawSecret,
// or ErrNoMatch. Malformed input (empty, or missing the issued prefix)
// fails without touching the store.
func (m *Matcher) Match(ctx context.Context, rawSecret string) (*Subkey, error) {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" || !strings.HasPrefix(rawSecret, SecretPrefix) {
		return nil, ErrNoMatch
	}

	keys, err := m.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for i := range keys {
		if bcrypt.CompareHashAndPassword([]byte(keys[i].KeyHash), []byte(rawSecret)) == nil {
			return &keys[i], nil
		}
	}

	return nil, ErrNoMatch
}
