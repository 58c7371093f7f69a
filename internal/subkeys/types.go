package subkeys

import (
	"errors"
	"time"
)

const (
	// MaxActivePerOwner caps simultaneously non-revoked subkeys per
	// account.
	MaxActivePerOwner = 10

	// ResetWindow is the fixed duration after which usage counters
	// lazily reset on next access.
	ResetWindow = 24 * time.Hour

	// SecretPrefix prefixes every issued raw secret.
	SecretPrefix = "sk_live_"
)

var (
	ErrSubkeyNotFound = errors.New("subkey not found")
	ErrSubkeyRevoked  = errors.New("subkey is revoked")
	ErrQuotaExceeded  = errors.New("active subkey quota reached")
	ErrBudgetExceeded = errors.New("token budget exceeded")
	ErrNoMatch        = errors.New("no subkey matches the presented secret")
	ErrNegativeLimit  = errors.New("token_limit must not be negative")
)

// Subkey is a caller-facing, revocable, budget-bounded credential. The
// raw secret exists only in the issuance response; only its salted hash
// is stored. TokenLimit 0 means unbounded.
type Subkey struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"-"`
	Name       string     `json:"name,omitempty"`
	KeyHash    string     `json:"-"`
	TokenLimit int64      `json:"token_limit"`
	TokensUsed int64      `json:"tokens_used"`
	UsageCount int64      `json:"usage_count"`
	ResetAt    time.Time  `json:"reset_at"`
	Revoked    bool       `json:"revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Exhausted reports whether the subkey's budget leaves no room for cost.
// A zero limit never exhausts.
func (k *Subkey) Exhausted(cost int64) bool {
	return k.TokenLimit > 0 && k.TokensUsed+cost > k.TokenLimit
}

// Totals is the counter snapshot returned by an accounting commit.
type Totals struct {
	TokensUsed int64
	UsageCount int64
	ResetAt    time.Time
}
