package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/ports"
	"go.uber.org/zap"
)

// Sessions issues, validates and revokes bearer sessions. Only token hashes
// are stored.
type Sessions struct {
	sessions *store.Collection[core.Session]
	owners   ports.OwnershipChecker
	events   ports.EventPublisher
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// Issue creates a session for the pair. The raw token is only ever returned here.
func (s *Sessions) Issue(ctx context.Context, signer, account string) (core.IssuedSession, error) {
	token, err := randomHex(32)
	if err != nil {
		return core.IssuedSession{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now().UTC()
	record := core.Session{
		TokenHash:      hashToken(token),
		SignerAddress:  signer,
		AccountAddress: account,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}

	err = s.sessions.Update(ctx, func(current []core.Session) ([]core.Session, bool, error) {
		next := s.pruneExpired(current, now)
		return append(next, record), true, nil
	})
	if err != nil {
		return core.IssuedSession{}, fmt.Errorf("failed to persist session: %w", err)
	}

	if err := s.events.PublishSessionIssued(ctx, signer, account); err != nil {
		s.logger.Warn("failed to publish session event", zap.Error(err))
	}

	return core.IssuedSession{
		Token:          token,
		SignerAddress:  record.SignerAddress,
		AccountAddress: record.AccountAddress,
		CreatedAt:      record.CreatedAt,
		ExpiresAt:      record.ExpiresAt,
	}, nil
}

// IssueForOwner re-checks ownership before issuing
func (s *Sessions) IssueForOwner(ctx context.Context, signer, account string) (core.IssuedSession, error) {
	owner, err := s.owners.IsOwner(ctx, signer, account)
	if err != nil {
		return core.IssuedSession{}, err
	}
	if !owner {
		return core.IssuedSession{}, core.ErrNotOwner
	}
	return s.Issue(ctx, signer, account)
}

// Validate returns the session for token, or nil when the token is empty,
// unknown or expired. Expired rows are pruned and legacy plaintext rows are
// migrated to hash-only in the same write.
func (s *Sessions) Validate(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, nil
	}
	now := s.now()
	tokenHash := hashToken(token)

	var found *core.Session
	err := s.sessions.Update(ctx, func(current []core.Session) ([]core.Session, bool, error) {
		next := s.pruneExpired(current, now)
		changed := len(next) != len(current)

		for i := range next {
			if !matches(next[i], token, tokenHash) {
				continue
			}
			if next[i].TokenHash == "" {
				next[i].TokenHash = tokenHash
				next[i].Token = ""
				changed = true
				s.logger.Info("migrated legacy session to hashed token",
					zap.String("signer", next[i].SignerAddress))
			}
			session := next[i]
			found = &session
			break
		}
		return next, changed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return found, nil
}

// Revoke removes every session matching token. Unknown tokens are not an error.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	tokenHash := hashToken(token)

	var revoked []core.Session
	err := s.sessions.Update(ctx, func(current []core.Session) ([]core.Session, bool, error) {
		next := make([]core.Session, 0, len(current))
		for _, rec := range current {
			if matches(rec, token, tokenHash) {
				revoked = append(revoked, rec)
				continue
			}
			next = append(next, rec)
		}
		return next, len(revoked) > 0, nil
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	for _, rec := range revoked {
		if err := s.events.PublishSessionRevoked(ctx, rec.SignerAddress, rec.AccountAddress); err != nil {
			s.logger.Warn("failed to publish session event", zap.Error(err))
		}
	}
	return nil
}

func (s *Sessions) pruneExpired(records []core.Session, now time.Time) []core.Session {
	next := make([]core.Session, 0, len(records)+1)
	for _, rec := range records {
		if !rec.Expired(now) {
			next = append(next, rec)
		}
	}
	return next
}

// matches compares in constant time, against the hash or the legacy plaintext
func matches(rec core.Session, token, tokenHash string) bool {
	if rec.TokenHash != "" {
		return subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(tokenHash)) == 1
	}
	if rec.Token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rec.Token), []byte(token)) == 1
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
