package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"rewards-backend/rewards"
	"rewards-backend/utils"

	"github.com/gin-gonic/gin"
)

var kindStatus = map[rewards.Kind]int{
	rewards.KindUnauthenticated:    http.StatusUnauthorized,
	rewards.KindPermissionDenied:   http.StatusForbidden,
	rewards.KindInvalidArgument:    http.StatusBadRequest,
	rewards.KindNotFound:           http.StatusNotFound,
	rewards.KindFailedPrecondition: http.StatusPreconditionFailed,
	rewards.KindAlreadyExists:      http.StatusConflict,
	rewards.KindResourceExhausted:  http.StatusTooManyRequests,
	rewards.KindAborted:            http.StatusConflict,
	rewards.KindInternal:           http.StatusInternalServerError,
}

func statusFor(kind rewards.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, kind rewards.Kind, message string) {
	c.JSON(statusFor(kind), gin.H{"error": gin.H{"kind": kind, "message": message}})
}

// respondError writes a domain error as-is. Anything else is logged and hidden behind a
// generic internal error.
func respondError(c *gin.Context, err error) {
	var domain *rewards.Error
	if errors.As(err, &domain) && domain.Kind != rewards.KindInternal {
		writeError(c, domain.Kind, domain.Message)
		return
	}
	slog.Error("request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err,
	)
	writeError(c, rewards.KindInternal, "Internal server error")
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, rewards.KindInvalidArgument, utils.SanitizeValidationError(err))
		return false
	}
	return true
}
