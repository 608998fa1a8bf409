package service

import (
	"context"
	"errors"
	"time"

	"github.com/albert-vybestein/neobank/adapters/events"
	"github.com/albert-vybestein/neobank/adapters/store"
	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/ports"
	"go.uber.org/zap"
)

// Options wires the collaborators of AuthService. Store, Verifier and
// Deployer are required; Chain is required in real mode.
type Options struct {
	Store    ports.RecordStore
	Mode     core.DeployMode
	Chain    ports.SafeChain
	Verifier ports.SignatureVerifier
	Deployer ports.Deployer
	Identity ports.IdentityVerifier
	Events   ports.EventPublisher
	Metrics  *obs.Metrics
	Logger   *zap.Logger

	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	Login        LoginConfig

	Now func() time.Time
}

// AuthService handles authentication business logic
type AuthService struct {
	Registry   *Registry
	Challenges *Challenges
	Sessions   *Sessions
	// Login is nil when no identity provider is configured
	Login *LoginFlow

	mode    core.DeployMode
	metrics *obs.Metrics
	logger  *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(opts Options) *AuthService {
	if opts.Mode == "" {
		opts.Mode = core.DeployModeMock
	}
	if opts.Events == nil {
		opts.Events = events.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = 5 * time.Minute
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour // 7 days
	}
	if opts.Login.IdentityAttempts <= 0 || opts.Login.OwnerAttempts <= 0 {
		sleep := opts.Login.Sleep
		opts.Login = DefaultLoginConfig()
		opts.Login.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	registry := &Registry{
		deployments: store.NewCollection[core.Deployment](opts.Store, store.DeploymentsCollection),
		mode:        opts.Mode,
		chain:       opts.Chain,
		deployer:    opts.Deployer,
		events:      opts.Events,
		metrics:     opts.Metrics,
		logger:      opts.Logger.Named("registry"),
		now:         opts.Now,
	}
	sessions := &Sessions{
		sessions: store.NewCollection[core.Session](opts.Store, store.SessionsCollection),
		owners:   registry,
		events:   opts.Events,
		logger:   opts.Logger.Named("sessions"),
		ttl:      opts.SessionTTL,
		now:      opts.Now,
	}
	challenges := &Challenges{
		challenges: store.NewCollection[core.Challenge](opts.Store, store.ChallengesCollection),
		owners:     registry,
		verifier:   opts.Verifier,
		sessions:   sessions,
		metrics:    opts.Metrics,
		logger:     opts.Logger.Named("challenges"),
		ttl:        opts.ChallengeTTL,
		now:        opts.Now,
	}

	s := &AuthService{
		Registry:   registry,
		Challenges: challenges,
		Sessions:   sessions,
		mode:       opts.Mode,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if opts.Identity != nil {
		s.Login = &LoginFlow{
			identity: opts.Identity,
			sessions: sessions,
			cfg:      opts.Login,
			metrics:  opts.Metrics,
			logger:   opts.Logger.Named("login"),
		}
	}
	return s
}

// Mode returns the deployment mode the service runs in
func (s *AuthService) Mode() core.DeployMode {
	return s.mode
}

// MockSession issues a session without a signature. It only works in mock mode.
func (s *AuthService) MockSession(ctx context.Context, signer, account string) (core.IssuedSession, error) {
	if s.mode != core.DeployModeMock {
		return core.IssuedSession{}, core.ErrMockSessionDisabled
	}
	session, err := s.Sessions.IssueForOwner(ctx, signer, account)
	if err != nil {
		return core.IssuedSession{}, err
	}
	s.metrics.SessionIssued("mock")
	return session, nil
}

// ErrLoginUnavailable is returned when no identity provider is configured
var ErrLoginUnavailable = errors.New("identity provider login is not configured")

// IdentityLogin runs the identity provider login flow
func (s *AuthService) IdentityLogin(ctx context.Context, req LoginRequest) (core.IssuedSession, error) {
	if s.Login == nil {
		return core.IssuedSession{}, ErrLoginUnavailable
	}
	return s.Login.Login(ctx, req)
}
