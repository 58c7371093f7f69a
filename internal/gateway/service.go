package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/subkeyhq/gateway/internal/auditlog"
	"github.com/subkeyhq/gateway/internal/httperr"
	"github.com/subkeyhq/gateway/internal/logger"
	"github.com/subkeyhq/gateway/internal/subkeys"
	"github.com/subkeyhq/gateway/internal/vault"
)

// SecretMatcher resolves a presented raw secret to a live subkey.
type SecretMatcher interface {
	Match(ctx context.Context, rawSecret string) (*subkeys.Subkey, error)
}

// CredentialSource produces the owner's decrypted master credential for
// the duration of one upstream call.
type CredentialSource interface {
	Plaintext(ctx context.Context, ownerID string) (string, error)
}

// AuditAppender records usage events against a subkey.
type AuditAppender interface {
	Append(ctx context.Context, subkeyID, eventType string, actorID *string) error
}

// Output is the successful proxy response.
type Output struct {
	Result     string    `json:"result"`
	TokensUsed int64     `json:"tokens_used"`
	TotalUsed  int64     `json:"total_used"`
	ResetAt    time.Time `json:"reset_at"`
}

// Service drives the proxied-call sequence: match, lazy reset, admission,
// decrypt, upstream call, measured-cost accounting, audit.
type Service struct {
	logger   *logger.Logger
	matcher  SecretMatcher
	store    *subkeys.Store
	vault    CredentialSource
	provider Provider
	audit    AuditAppender
}

func NewService(log *logger.Logger, matcher SecretMatcher, store *subkeys.Store, credentials CredentialSource, provider Provider, audit AuditAppender) *Service {
	return &Service{
		logger:   log,
		matcher:  matcher,
		store:    store,
		vault:    credentials,
		provider: provider,
		audit:    audit,
	}
}

// AuthenticateAndExecute performs one proxied call. Errors returned are
// httperr values carrying the taxonomy; budget rejections include the
// current reset_at so callers can schedule a retry.
func (s *Service) AuthenticateAndExecute(ctx context.Context, rawSecret, prompt string) (*Output, error) {
	key, err := s.matcher.Match(ctx, rawSecret)
	if err != nil {
		if errors.Is(err, subkeys.ErrNoMatch) {
			return nil, httperr.Unauthorized("invalid API key")
		}
		s.logger.Error("Credential match failed", "error", err)
		return nil, httperr.Internal("failed to authenticate request")
	}

	// Lazy reset: triggered only by access, never by a timer. The
	// conditional update tolerates racing requests; re-read afterwards
	// for fresh counters either way.
	now := time.Now()
	if now.After(key.ResetAt) {
		if _, err := s.store.ResetIfDue(ctx, key.ID, now); err != nil {
			s.logger.Error("Failed to reset usage window", "subkey", key.ID, "error", err)
			return nil, httperr.Internal("failed to process request")
		}
		fresh, err := s.store.GetByID(ctx, key.ID)
		if err != nil {
			s.logger.Error("Failed to reload subkey after reset", "subkey", key.ID, "error", err)
			return nil, httperr.Internal("failed to process request")
		}
		key = fresh
	}

	// The plaintext credential lives only in this frame, for the
	// duration of the upstream call. It is never logged.
	masterKey, err := s.vault.Plaintext(ctx, key.OwnerID)
	if err != nil {
		if errors.Is(err, vault.ErrNotConfigured) {
			return nil, httperr.Validation("master credential not configured")
		}
		s.logger.Error("Failed to decrypt master credential", "owner", key.OwnerID, "error", err)
		return nil, httperr.Internal("failed to access master credential")
	}

	// Estimate-based short-circuit: skip the upstream call when even the
	// approximation does not fit. The binding admission decision is the
	// measured-cost conditional commit below.
	estimate, err := s.provider.EstimateTokens(ctx, prompt)
	if err != nil {
		s.logger.Error("Failed to estimate token cost", "subkey", key.ID, "error", err)
		return nil, httperr.Internal("failed to estimate request cost")
	}
	if key.Exhausted(estimate) {
		return nil, s.budgetExceeded(ctx, key)
	}

	result, err := s.provider.Generate(ctx, masterKey, prompt)
	if err != nil {
		return nil, httperr.Upstream("upstream call failed: " + err.Error())
	}

	totals, err := s.store.CommitUsage(ctx, key.ID, result.TotalTokens)
	if err != nil {
		switch {
		case errors.Is(err, subkeys.ErrBudgetExceeded):
			// The upstream spend happened but the measured cost does not
			// fit the budget. No grace: the request is rejected and the
			// counters stay untouched.
			s.logger.Warn("Measured cost exceeds budget after successful upstream call",
				"subkey", key.ID,
				"cost", result.TotalTokens,
			)
			return nil, s.budgetExceeded(ctx, key)
		case errors.Is(err, subkeys.ErrSubkeyRevoked), errors.Is(err, subkeys.ErrSubkeyNotFound):
			// Revoked between match and commit. The upstream call
			// succeeded but cannot be accounted; surface it.
			s.logger.Error("Accounting skipped: subkey revoked after successful upstream call",
				"subkey", key.ID,
				"cost", result.TotalTokens,
			)
			return nil, httperr.Unauthorized("invalid API key")
		default:
			s.logger.Error("Accounting update failed after successful upstream call",
				"subkey", key.ID,
				"cost", result.TotalTokens,
				"error", err,
			)
			return nil, httperr.Internal("failed to record usage")
		}
	}

	// Usage events carry no acting principal.
	if err := s.audit.Append(ctx, key.ID, auditlog.EventRequestSuccess, nil); err != nil {
		s.logger.Error("Failed to append usage audit entry", "subkey", key.ID, "error", err)
	}

	return &Output{
		Result:     result.Text,
		TokensUsed: result.TotalTokens,
		TotalUsed:  totals.TokensUsed,
		ResetAt:    totals.ResetAt,
	}, nil
}

// budgetExceeded builds the Forbidden response with the freshest
// reset_at available.
func (s *Service) budgetExceeded(ctx context.Context, key *subkeys.Subkey) error {
	resetAt := key.ResetAt
	if fresh, err := s.store.GetByID(ctx, key.ID); err == nil {
		resetAt = fresh.ResetAt
	}
	return httperr.Forbidden("token limit exceeded").WithMeta("reset_at", resetAt)
}
