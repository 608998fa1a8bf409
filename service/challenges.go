package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/ports"
	"go.uber.org/zap"
)

// VerifyRequest is a signed answer to a previously issued challenge
type VerifyRequest struct {
	SignerAddress  string
	AccountAddress string
	Nonce          string
	Signature      string
	Method         core.AuthMethod
}

// Challenges issues single-use login challenges and exchanges signed ones for sessions
type Challenges struct {
	challenges *store.Collection[core.Challenge]
	owners     ports.OwnershipChecker
	verifier   ports.SignatureVerifier
	sessions   *Sessions
	metrics    *obs.Metrics
	logger     *zap.Logger
	ttl        time.Duration
	now        func() time.Time
}

// Issue creates a challenge for a signer that currently owns account
func (c *Challenges) Issue(ctx context.Context, signer, account string) (core.IssuedChallenge, error) {
	owner, err := c.owners.IsOwner(ctx, signer, account)
	if err != nil {
		return core.IssuedChallenge{}, err
	}
	if !owner {
		return core.IssuedChallenge{}, core.ErrNotOwner
	}

	random, err := randomHex(32)
	if err != nil {
		return core.IssuedChallenge{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := "0x" + random

	now := c.now().UTC()
	challenge := core.Challenge{
		Nonce:          nonce,
		SignerAddress:  signer,
		AccountAddress: account,
		Message:        core.FormatLoginMessage(account, signer, nonce, now),
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}

	err = c.challenges.Update(ctx, func(current []core.Challenge) ([]core.Challenge, bool, error) {
		next := make([]core.Challenge, 0, len(current)+1)
		for _, ch := range current {
			if !ch.Expired(now) {
				next = append(next, ch)
			}
		}
		return append(next, challenge), true, nil
	})
	if err != nil {
		return core.IssuedChallenge{}, fmt.Errorf("failed to persist challenge: %w", err)
	}

	c.metrics.ChallengeIssued()
	return core.IssuedChallenge{
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// Verify checks the signature over the stored challenge message, re-checks
// ownership, consumes the challenge and issues a session, in that order.
func (c *Challenges) Verify(ctx context.Context, req VerifyRequest) (core.IssuedSession, error) {
	method := req.Method
	if method == "" {
		method = core.AuthMethodWallet
	}

	challenge, err := c.find(ctx, req)
	if err != nil {
		return core.IssuedSession{}, err
	}

	err = c.verifier.Verify(ctx, method, ports.SignatureInput{
		Message:   challenge.Message,
		Signature: req.Signature,
		Signer:    req.SignerAddress,
		Account:   req.AccountAddress,
	})
	if err != nil {
		c.metrics.Verification(string(method), "rejected")
		return core.IssuedSession{}, err
	}
	c.metrics.Verification(string(method), "ok")

	owner, err := c.owners.IsOwner(ctx, req.SignerAddress, req.AccountAddress)
	if err != nil {
		return core.IssuedSession{}, err
	}
	if !owner {
		return core.IssuedSession{}, core.ErrOwnershipRevoked
	}

	if err := c.consume(ctx, challenge.Nonce); err != nil {
		return core.IssuedSession{}, err
	}

	session, err := c.sessions.Issue(ctx, req.SignerAddress, req.AccountAddress)
	if err != nil {
		return core.IssuedSession{}, err
	}
	c.metrics.SessionIssued("challenge")
	c.logger.Info("challenge verified",
		zap.String("signer", req.SignerAddress),
		zap.String("account", req.AccountAddress),
		zap.String("method", string(method)))
	return session, nil
}

func (c *Challenges) find(ctx context.Context, req VerifyRequest) (core.Challenge, error) {
	records, err := c.challenges.All(ctx)
	if err != nil {
		return core.Challenge{}, fmt.Errorf("failed to read challenges: %w", err)
	}
	for _, ch := range records {
		if ch.Used || !ch.Matches(req.Nonce, req.SignerAddress, req.AccountAddress) {
			continue
		}
		if ch.Expired(c.now()) {
			return core.Challenge{}, core.ErrChallengeExpiredOrMissing
		}
		return ch, nil
	}
	return core.Challenge{}, core.ErrChallengeExpiredOrMissing
}

var errChallengeGone = errors.New("challenge consumed concurrently")

// consume marks the challenge used unless another request got there first
func (c *Challenges) consume(ctx context.Context, nonce string) error {
	now := c.now()
	err := c.challenges.Update(ctx, func(current []core.Challenge) ([]core.Challenge, bool, error) {
		for i := range current {
			if current[i].Nonce != nonce {
				continue
			}
			if current[i].Used || current[i].Expired(now) {
				return nil, false, errChallengeGone
			}
			current[i].Used = true
			return current, true, nil
		}
		return nil, false, errChallengeGone
	})
	if errors.Is(err, errChallengeGone) {
		return core.ErrChallengeExpiredOrMissing
	}
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	return nil
}
