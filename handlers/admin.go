package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"rewards-backend/dtos"
	"rewards-backend/firebase"
	"rewards-backend/middleware"
	"rewards-backend/rewards"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the admin-only rewards routes. Reports may be nil when no storage
// bucket is configured, in which case exports are refused.
type AdminHandler struct {
	Service *rewards.Service
	Reports firebase.ReportStorage
}

func (h *AdminHandler) Adjust(c *gin.Context) {
	var req dtos.AdminAdjustRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.Service.AdminAdjustPoints(c.Request.Context(), rewards.AdjustRequest{
		AdminID:      middleware.UserID(c),
		AdminIsAdmin: middleware.IsAdmin(c),
		TargetUserID: req.UserID,
		Delta:        req.Delta,
		Reason:       req.Reason,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) Elevate(c *gin.Context) {
	res, err := h.Service.ElevateUserToAdmin(c.Request.Context(), middleware.UserID(c), middleware.IsAdmin(c), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) Analytics(c *gin.Context) {
	summary, ok := h.summary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportAnalytics uploads the current analytics snapshot and returns where it landed.
func (h *AdminHandler) ExportAnalytics(c *gin.Context) {
	if h.Reports == nil {
		writeError(c, rewards.KindFailedPrecondition, "Report storage is not configured")
		return
	}
	summary, ok := h.summary(c)
	if !ok {
		return
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		respondError(c, fmt.Errorf("encode analytics: %w", err))
		return
	}
	url, err := h.Reports.UploadReport(c.Request.Context(), fmt.Sprintf("analytics_%dd.json", summary.WindowDays), data)
	if err != nil {
		respondError(c, fmt.Errorf("upload analytics: %w", err))
		return
	}

	slog.Info("analytics exported", "admin_id", middleware.UserID(c), "url", url)
	c.JSON(http.StatusOK, gin.H{"url": url, "generated_at": summary.GeneratedAt})
}

func (h *AdminHandler) VerifyLedger(c *gin.Context) {
	check, err := h.Service.VerifyLedger(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *AdminHandler) summary(c *gin.Context) (*rewards.AnalyticsSummary, bool) {
	days, err := queryInt(c, "days", 0)
	if err != nil {
		writeError(c, rewards.KindInvalidArgument, "days must be a number")
		return nil, false
	}
	summary, err := h.Service.Analytics(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return summary, true
}
