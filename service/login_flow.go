package service

import (
	"context"
	"errors"
	"time"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/internal/retry"
	"github.com/albert-vybestein/neobank/ports"
	"go.uber.org/zap"
)

// LoginConfig bounds the two retry phases of the identity provider login
type LoginConfig struct {
	IdentityAttempts int
	IdentityDelay    time.Duration
	OwnerAttempts    int
	OwnerDelay       time.Duration

	// Sleep overrides the pause between attempts, tests use retry.NoSleep
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultLoginConfig waits up to about 4s for wallet linking and 12s for ownership
func DefaultLoginConfig() LoginConfig {
	return LoginConfig{
		IdentityAttempts: 8,
		IdentityDelay:    500 * time.Millisecond,
		OwnerAttempts:    10,
		OwnerDelay:       1200 * time.Millisecond,
	}
}

// LoginRequest is an identity provider backed sign in
type LoginRequest struct {
	AccessToken    string
	SignerAddress  string
	AccountAddress string
}

// LoginFlow signs in with an identity provider token. Both the provider's
// wallet link and the on-chain owner list lag behind a fresh sign up, so each
// phase retries its own lag error and nothing else.
type LoginFlow struct {
	identity ports.IdentityVerifier
	sessions *Sessions
	cfg      LoginConfig
	metrics  *obs.Metrics
	logger   *zap.Logger
}

// Login runs the identity phase, then the account session phase
func (f *LoginFlow) Login(ctx context.Context, req LoginRequest) (core.IssuedSession, error) {
	identityPolicy := retry.Policy{
		MaxAttempts: f.cfg.IdentityAttempts,
		Delay:       f.cfg.IdentityDelay,
		Sleep:       f.cfg.Sleep,
		IsTransient: func(err error) bool { return errors.Is(err, core.ErrWalletNotLinked) },
		OnRetry:     f.onRetry("identity"),
	}
	userID, err := retry.DoValue(ctx, identityPolicy, func(ctx context.Context) (string, error) {
		return f.identity.VerifyWallet(ctx, req.AccessToken, req.SignerAddress)
	})
	if err != nil {
		return core.IssuedSession{}, err
	}

	ownerPolicy := retry.Policy{
		MaxAttempts: f.cfg.OwnerAttempts,
		Delay:       f.cfg.OwnerDelay,
		Sleep:       f.cfg.Sleep,
		IsTransient: func(err error) bool { return errors.Is(err, core.ErrNotOwner) },
		OnRetry:     f.onRetry("owner"),
	}
	session, err := retry.DoValue(ctx, ownerPolicy, func(ctx context.Context) (core.IssuedSession, error) {
		return f.sessions.IssueForOwner(ctx, req.SignerAddress, req.AccountAddress)
	})
	if err != nil {
		return core.IssuedSession{}, err
	}

	f.metrics.SessionIssued("privy")
	f.logger.Info("identity login succeeded",
		zap.String("user", userID),
		zap.String("signer", req.SignerAddress),
		zap.String("account", req.AccountAddress))
	return session, nil
}

func (f *LoginFlow) onRetry(phase string) func(int, error) {
	return func(attempt int, err error) {
		f.metrics.RetryAttempt(phase)
		f.logger.Debug("login phase retrying",
			zap.String("phase", phase),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
}
