package http

import (
	"net/http"
	"strings"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ownerRequest struct {
	SignerAddress  string `json:"signerAddress" binding:"required,eth_addr"`
	AccountAddress string `json:"accountAddress" binding:"required,eth_addr"`
}

type verifyRequest struct {
	SignerAddress  string `json:"signerAddress" binding:"required,eth_addr"`
	AccountAddress string `json:"accountAddress" binding:"required,eth_addr"`
	Nonce          string `json:"nonce" binding:"required,len=66,startswith=0x,hexadecimal"`
	Signature      string `json:"signature" binding:"required,startswith=0x,hexadecimal,max=20000"`
	AuthMethod     string `json:"authMethod" binding:"omitempty,oneof=wallet passkey"`
}

type identitySessionRequest struct {
	SignerAddress  string `json:"signerAddress" binding:"required,eth_addr"`
	AccountAddress string `json:"accountAddress" binding:"required,eth_addr"`
	AccessToken    string `json:"accessToken" binding:"required,min=20,max=10000"`
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger
	secure      bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *zap.Logger, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
		secure:      secureCookies,
	}
}

// Challenge issues a login challenge for an owner
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req ownerRequest
	if !bindJSON(c, &req) {
		return
	}

	challenge, err := h.authService.Challenges.Issue(c.Request.Context(), req.SignerAddress, req.AccountAddress)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// Verify exchanges a signed challenge for a session cookie
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}

	method, err := core.ParseAuthMethod(req.AuthMethod)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	session, err := h.authService.Challenges.Verify(c.Request.Context(), service.VerifyRequest{
		SignerAddress:  req.SignerAddress,
		AccountAddress: req.AccountAddress,
		Nonce:          req.Nonce,
		Signature:      req.Signature,
		Method:         method,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.respondWithSession(c, session)
}

// Session reports the principal behind the session cookie
func (h *AuthHandlers) Session(c *gin.Context) {
	session, err := h.authService.Sessions.Validate(c.Request.Context(), sessionToken(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated":  true,
		"signerAddress":  session.SignerAddress,
		"accountAddress": session.AccountAddress,
		"expiresAt":      session.ExpiresAt,
	})
}

// Logout revokes the session and clears the cookie. It always succeeds.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if token := sessionToken(c); token != "" {
		if err := h.authService.Sessions.Revoke(c.Request.Context(), token); err != nil {
			h.logger.Warn("failed to revoke session", zap.Error(err))
		}
	}

	clearSessionCookie(c, h.secure)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MockSession issues a session without a signature in mock mode
func (h *AuthHandlers) MockSession(c *gin.Context) {
	if h.authService.Mode() != core.DeployModeMock {
		writeError(c, h.logger, core.ErrMockSessionDisabled)
		return
	}

	var req ownerRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.authService.MockSession(c.Request.Context(), req.SignerAddress, req.AccountAddress)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.respondWithSession(c, session)
}

// IdentitySession logs in with an identity provider access token
func (h *AuthHandlers) IdentitySession(c *gin.Context) {
	if h.authService.Login == nil {
		writeError(c, h.logger, service.ErrLoginUnavailable)
		return
	}

	var req identitySessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.authService.IdentityLogin(c.Request.Context(), service.LoginRequest{
		AccessToken:    req.AccessToken,
		SignerAddress:  req.SignerAddress,
		AccountAddress: req.AccountAddress,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.respondWithSession(c, session)
}

// Me returns the authenticated principal and its latest account
func (h *AuthHandlers) Me(c *gin.Context) {
	session := currentSession(c)
	if session == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session not found in context"})
		return
	}

	deployment, err := h.authService.Registry.FindLatestBySigner(c.Request.Context(), session.SignerAddress)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signerAddress":  session.SignerAddress,
		"accountAddress": session.AccountAddress,
		"expiresAt":      session.ExpiresAt,
		"deployment":     deployment,
	})
}

func (h *AuthHandlers) respondWithSession(c *gin.Context, session core.IssuedSession) {
	setSessionCookie(c, session.Token, h.secure)
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"signerAddress":  session.SignerAddress,
		"accountAddress": session.AccountAddress,
		"expiresAt":      session.ExpiresAt,
	})
}

type subAccountRequest struct {
	Name          string          `json:"name" binding:"required,min=1,max=48"`
	SpendingLimit decimal.Decimal `json:"spendingLimit"`
}

type modulesRequest struct {
	GuildDelay               bool `json:"guildDelay"`
	GuildRoles               bool `json:"guildRoles"`
	GuildAllowance           bool `json:"guildAllowance"`
	GuildRecovery            bool `json:"guildRecovery"`
	RhinestoneSessions       bool `json:"rhinestoneSessions"`
	RhinestoneSpendingPolicy bool `json:"rhinestoneSpendingPolicy"`
	RhinestoneAutomation     bool `json:"rhinestoneAutomation"`
	TimeLockHours            int  `json:"timeLockHours" binding:"min=0,max=72"`
}

type accountSetupRequest struct {
	AccountType  string              `json:"accountType" binding:"required,oneof=personal joint business sub-account"`
	BaseCurrency string              `json:"baseCurrency" binding:"required,oneof=EUR USD GBP"`
	AccountName  string              `json:"accountName" binding:"required,min=1,max=64"`
	SubAccounts  []subAccountRequest `json:"subAccounts" binding:"max=20,dive"`
	Modules      modulesRequest      `json:"modules"`
}

type deployRequest struct {
	SignerAddress string `json:"signerAddress" binding:"required,eth_addr"`
	accountSetupRequest
}

type registerRequest struct {
	SignerAddress    string `json:"signerAddress" binding:"required,eth_addr"`
	AccountAddress   string `json:"accountAddress" binding:"required,eth_addr"`
	DeploymentTxHash string `json:"deploymentTxHash" binding:"required,len=66,startswith=0x,hexadecimal"`
	ModuleTxHash     string `json:"moduleTxHash" binding:"required,len=66,startswith=0x,hexadecimal"`
	Network          string `json:"network" binding:"omitempty,max=32"`
	Mode             string `json:"mode" binding:"omitempty,oneof=mock real"`
	accountSetupRequest
}

type ownerQuery struct {
	Owner string `form:"owner" json:"owner" binding:"required,eth_addr"`
}

// toConfig converts the wire shape, rejecting negative spending limits
func (r accountSetupRequest) toConfig() (core.AccountConfig, bool) {
	subAccounts := make([]core.SubAccount, 0, len(r.SubAccounts))
	for _, sub := range r.SubAccounts {
		if sub.SpendingLimit.IsNegative() {
			return core.AccountConfig{}, false
		}
		subAccounts = append(subAccounts, core.SubAccount{
			Name:          strings.TrimSpace(sub.Name),
			SpendingLimit: sub.SpendingLimit,
		})
	}

	return core.AccountConfig{
		AccountType:  r.AccountType,
		BaseCurrency: r.BaseCurrency,
		AccountName:  strings.TrimSpace(r.AccountName),
		SubAccounts:  subAccounts,
		Modules: core.ModuleConfig{
			GuildDelay:               r.Modules.GuildDelay,
			GuildRoles:               r.Modules.GuildRoles,
			GuildAllowance:           r.Modules.GuildAllowance,
			GuildRecovery:            r.Modules.GuildRecovery,
			RhinestoneSessions:       r.Modules.RhinestoneSessions,
			RhinestoneSpendingPolicy: r.Modules.RhinestoneSpendingPolicy,
			RhinestoneAutomation:     r.Modules.RhinestoneAutomation,
			TimeLockHours:            r.Modules.TimeLockHours,
		},
	}, true
}

// SafeHandlers serves the account deployment endpoints
type SafeHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger
}

// NewSafeHandlers creates new account handlers
func NewSafeHandlers(authService *service.AuthService, logger *zap.Logger) *SafeHandlers {
	return &SafeHandlers{authService: authService, logger: logger}
}

// ByOwner returns the most recent deployment of a signer, or null
func (h *SafeHandlers) ByOwner(c *gin.Context) {
	var q ownerQuery
	if !bindQuery(c, &q) {
		return
	}

	deployment, err := h.authService.Registry.FindLatestBySigner(c.Request.Context(), q.Owner)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deployment": deployment})
}

// Deploy creates a new account for the signer
func (h *SafeHandlers) Deploy(c *gin.Context) {
	var req deployRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, ok := req.toConfig()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spendingLimit must not be negative"})
		return
	}

	result, err := h.authService.Registry.Deploy(c.Request.Context(), core.DeploymentRequest{
		SignerAddress: req.SignerAddress,
		AccountConfig: cfg,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Register records an account the client deployed itself
func (h *SafeHandlers) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, ok := req.toConfig()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spendingLimit must not be negative"})
		return
	}

	network := req.Network
	if network == "" {
		network = "sepolia"
	}

	result, err := h.authService.Registry.Register(c.Request.Context(), core.RegisterRequest{
		SignerAddress:    req.SignerAddress,
		AccountAddress:   req.AccountAddress,
		DeploymentTxHash: req.DeploymentTxHash,
		ModuleTxHash:     req.ModuleTxHash,
		Network:          network,
		Mode:             core.DeployMode(req.Mode),
		AccountConfig:    cfg,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
