package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	// SessionCookieName carries the opaque session token
	SessionCookieName = "neobank_session"

	sessionCookieMaxAge = 7 * 24 * 60 * 60

	// MaxJSONBodyBytes caps every JSON request body
	MaxJSONBodyBytes = 256_000

	maxIPLength        = 64
	maxUserAgentLength = 120
)

var registerTagNames sync.Once

// useJSONFieldNames makes validation errors report wire names (signerAddress, not SignerAddress).
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
}

// ClientKey identifies the caller for rate limiting: first trusted IP header hop plus a user agent prefix.
func ClientKey(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Vercel-Forwarded-For")
	}

	ip := firstNonEmpty(
		normalizeIP(r.Header.Get("CF-Connecting-IP")),
		normalizeIP(strings.Split(forwarded, ",")[0]),
		normalizeIP(r.Header.Get("X-Real-IP")),
		"unknown",
	)

	ua := "ua-unknown"
	if values, ok := r.Header["User-Agent"]; ok && len(values) > 0 {
		ua = values[0]
		if len(ua) > maxUserAgentLength {
			ua = ua[:maxUserAgentLength]
		}
	}
	return ip + ":" + ua
}

func normalizeIP(raw string) string {
	ip := strings.TrimSpace(raw)
	if len(ip) > maxIPLength {
		return ""
	}
	return ip
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sessionToken reads the session cookie, falling back to a bearer header
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookieName); err == nil && token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func setSessionCookie(c *gin.Context, token string, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, token, sessionCookieMaxAge, "/", "", secure, true)
}

func clearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", secure, true)
}

// bindJSON decodes and validates the body, writing a 400 on failure.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return false
	}
	return true
}

func bindQuery(c *gin.Context, out any) bool {
	if err := c.ShouldBindQuery(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid JSON payload"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed 20 byte address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s has an invalid length", fe.Field())
	case "min", "max":
		return fmt.Sprintf("%s is out of range", fe.Field())
	default:
		return fmt.Sprintf("Invalid %s", fe.Field())
	}
}
