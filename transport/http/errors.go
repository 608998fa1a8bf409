package http

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/albert-vybestein/neobank/core"
	"github.com/albert-vybestein/neobank/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxPublicMessageLength = 220
	genericErrorMessage    = "Request could not be processed"
	debugErrorMessage      = "Request could not be verified."
)

// clientErrors are domain failures the caller can act on. They map to 400.
var clientErrors = []error{
	core.ErrNotOwner,
	core.ErrChallengeExpiredOrMissing,
	core.ErrInvalidSignature,
	core.ErrSignerNotDeployed,
	core.ErrOwnershipRevoked,
	core.ErrWalletNotLinked,
	core.ErrIdentityRejected,
	core.ErrDeploymentUnverified,
	core.ErrClientDeploymentRequired,
	core.ErrUnsupportedChain,
	core.ErrInvalidAuthMethod,
}

// errorStatus maps a service error to its HTTP status and public message
func errorStatus(err error) (int, string) {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, SanitizeMessage(err.Error())
		}
	}

	switch {
	case errors.Is(err, core.ErrMockSessionDisabled):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrLoginUnavailable):
		return http.StatusServiceUnavailable, "Identity login is not configured"
	case errors.Is(err, core.ErrChainUnavailable):
		return http.StatusServiceUnavailable, "Chain access is not configured"
	default:
		return http.StatusInternalServerError, genericErrorMessage
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
	} else {
		logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}

// SanitizeMessage turns an error text into something safe to show a client.
func SanitizeMessage(raw string) string {
	msg := strings.Join(strings.Fields(raw), " ")
	if msg == "" {
		return genericErrorMessage
	}
	if strings.Contains(strings.ToLower(msg), "debug:") {
		return debugErrorMessage
	}
	if utf8.RuneCountInString(msg) > maxPublicMessageLength {
		return string([]rune(msg)[:maxPublicMessageLength]) + "..."
	}
	return msg
}
