package handlers

import (
	"net/http"

	"rewards-backend/rewards"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const CronSecretHeader = "X-Cron-Secret"

// CronHandler lets an external scheduler trigger jobs. SecretHash is a bcrypt hash of
// the shared secret.
type CronHandler struct {
	Service    *rewards.Service
	SecretHash string
}

func (h *CronHandler) authorized(c *gin.Context) bool {
	secret := c.GetHeader(CronSecretHeader)
	if h.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h.SecretHash), []byte(secret)) == nil
}

func (h *CronHandler) Birthday(c *gin.Context) {
	if !h.authorized(c) {
		writeError(c, rewards.KindUnauthenticated, "Invalid cron secret")
		return
	}

	run, err := h.Service.RunBirthdayBonuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
