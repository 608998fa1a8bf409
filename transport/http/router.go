package http

import (
	"net/http"
	"time"

	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/internal/ratelimit"
	"github.com/albert-vybestein/neobank/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	tooManySignIns = "Too many sign in attempts. Try again shortly."
	tooManyLookups = "Too many lookup requests. Try again shortly."
)

var (
	authRule          = ratelimit.Rule{Max: 20, Window: time.Minute}
	sessionLookupRule = ratelimit.Rule{Max: 120, Window: time.Minute}
	safeLookupRule    = ratelimit.Rule{Max: 60, Window: time.Minute}
	deployRule        = ratelimit.Rule{Max: 8, Window: time.Minute}
	registerRule      = ratelimit.Rule{Max: 10, Window: time.Minute}
)

// RouterConfig wires the router. AuthService is required; a nil Limiter gets a fresh one.
type RouterConfig struct {
	AuthService *service.AuthService
	Limiter     *ratelimit.Limiter
	Metrics     *obs.Metrics
	Logger      *zap.Logger
	Production  bool
	SiteURL     string
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New()
	}
	useJSONFieldNames()

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Instrument())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(SecurityHeaders(cfg.Production))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": cfg.AuthService.Mode()})
	})

	logger := cfg.Logger.Named("http")
	authHandlers := NewAuthHandlers(cfg.AuthService, logger, cfg.Production)
	safeHandlers := NewSafeHandlers(cfg.AuthService, logger)
	trusted := TrustedOrigin(cfg.Production, cfg.SiteURL)
	limit := func(action string, rule ratelimit.Rule, message string) gin.HandlerFunc {
		return RateLimit(cfg.Limiter, cfg.Metrics, action, rule, message)
	}

	// Auth routes
	auth := router.Group("/auth", NoStore(), BodyLimit(MaxJSONBodyBytes))
	{
		auth.POST("/challenge", trusted, limit("auth-challenge", authRule, tooManySignIns), authHandlers.Challenge)
		auth.POST("/verify", trusted, limit("auth-verify", authRule, tooManySignIns), authHandlers.Verify)
		auth.POST("/privy-session", trusted, limit("auth-privy-session", authRule, tooManySignIns), authHandlers.IdentitySession)
		auth.POST("/mock-session", trusted, authHandlers.MockSession)
		auth.POST("/logout", trusted, authHandlers.Logout)
		auth.GET("/session", limit("auth-session", sessionLookupRule, tooManyLookups), authHandlers.Session)
	}

	// Account routes
	safe := router.Group("/safe", NoStore(), BodyLimit(MaxJSONBodyBytes))
	{
		safe.GET("/by-owner", limit("safe-by-owner", safeLookupRule, tooManyLookups), safeHandlers.ByOwner)
		safe.POST("/deploy", trusted,
			limit("safe-deploy", deployRule, "Too many deployment attempts. Please wait before trying again."),
			safeHandlers.Deploy)
		safe.POST("/deploy/register", trusted,
			limit("safe-deploy-register", registerRule, "Too many deployment registration attempts. Please wait before trying again."),
			safeHandlers.Register)
	}

	// Protected API routes
	api := router.Group("/api", NoStore())
	api.Use(SessionAuth(cfg.AuthService, logger))
	{
		api.GET("/me", authHandlers.Me)
	}

	return router
}
