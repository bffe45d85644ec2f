package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rewards-backend/rewards"
	"rewards-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const SignatureHeader = "X-Signature"

// WebhookHandler accepts signed payment events from the payment processor.
type WebhookHandler struct {
	Service   *rewards.Service
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func (h *WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *WebhookHandler) PaymentSucceeded(c *gin.Context) {
	if h.Secret == "" {
		writeError(c, rewards.KindFailedPrecondition, "Payment webhook is not configured")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		writeError(c, rewards.KindInvalidArgument, "Unable to read request body")
		return
	}

	if err := utils.VerifySignature(c.GetHeader(SignatureHeader), body, h.Secret, h.Tolerance, h.now()); err != nil {
		slog.Warn("payment webhook rejected", "reason", err, "client_ip", c.ClientIP())
		msg := "Invalid signature"
		if errors.Is(err, utils.ErrSignatureExpired) {
			msg = "Signature expired"
		}
		writeError(c, rewards.KindUnauthenticated, msg)
		return
	}

	var ev rewards.PaymentEvent
	if err := binding.JSON.BindBody(body, &ev); err != nil {
		writeError(c, rewards.KindInvalidArgument, utils.SanitizeValidationError(err))
		return
	}

	res, err := h.Service.HandlePaymentSucceeded(c.Request.Context(), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
