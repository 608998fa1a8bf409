package http

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/internal/obs"
	"github.com/albert-vybestein/neobank/internal/ratelimit"
	"github.com/albert-vybestein/neobank/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionContextKey = "session"

var devOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3001",
}

// RequestLogger logs every request with latency and a request id.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.Request.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// SecurityHeaders sets the standard browser hardening headers on every response
func SecurityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin-allow-popups")
		if production {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		c.Next()
	}
}

// NoStore keeps API responses out of every cache
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("Vary", "Origin")
		c.Next()
	}
}

// BodyLimit caps how much of the body a handler can read. Decoding an
// oversized body fails and is reported as an invalid payload.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// TrustedOrigin blocks browser requests coming from a foreign origin.
func TrustedOrigin(production bool, siteURL string) gin.HandlerFunc {
	siteOrigin := normalizeOrigin(siteURL)

	return func(c *gin.Context) {
		origin := normalizeOrigin(c.GetHeader("Origin"))

		if origin != "" && !production && isLoopbackOrigin(origin) {
			c.Next()
			return
		}

		if origin != "" && !allowedOrigin(c.Request, origin, siteOrigin, production) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Untrusted request origin."})
			return
		}

		if strings.EqualFold(c.GetHeader("Sec-Fetch-Site"), "cross-site") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Cross-site requests are not allowed."})
			return
		}

		c.Next()
	}
}

func allowedOrigin(r *http.Request, origin, siteOrigin string, production bool) bool {
	allowed := make([]string, 0, 8)
	for _, host := range []string{strings.TrimSpace(r.Host), strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))} {
		if host == "" {
			continue
		}
		allowed = append(allowed, normalizeOrigin("http://"+host), normalizeOrigin("https://"+host))
	}
	if siteOrigin != "" {
		allowed = append(allowed, siteOrigin)
	}
	if !production {
		allowed = append(allowed, devOrigins...)
	}

	for _, candidate := range allowed {
		if candidate != "" && candidate == origin {
			return true
		}
	}
	return false
}

// normalizeOrigin reduces a URL to scheme://host[:port], dropping default ports
func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// RateLimit counts the request against action's budget for the calling client.
func RateLimit(limiter *ratelimit.Limiter, metrics *obs.Metrics, action string, rule ratelimit.Rule, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := limiter.Check(action+":"+ClientKey(c.Request), rule)
		if !res.Allowed {
			metrics.RateLimited(action)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

// SessionAuth requires a valid session and stores it in the context
func SessionAuth(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := authService.Sessions.Validate(c.Request.Context(), sessionToken(c))
		if err != nil {
			writeError(c, logger, err)
			c.Abort()
			return
		}
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

func currentSession(c *gin.Context) *core.Session {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := v.(*core.Session)
	return session
}
