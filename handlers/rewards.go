package handlers

import (
	"net/http"
	"strconv"

	"rewards-backend/dtos"
	"rewards-backend/middleware"
	"rewards-backend/models"
	"rewards-backend/rewards"

	"github.com/gin-gonic/gin"
)

type RewardsHandler struct {
	Service *rewards.Service
}

type profileResponse struct {
	*models.LoyaltyProfile
	NextTier         models.Tier `json:"next_tier,omitempty"`
	PointsToNextTier int         `json:"points_to_next_tier"`
	Created          bool        `json:"created"`
}

func (h *RewardsHandler) Earn(c *gin.Context) {
	var req dtos.EarnPointsRequest
	if !bindJSON(c, &req) {
		return
	}

	callerID := middleware.UserID(c)
	if req.UserID == "" {
		req.UserID = callerID
	}
	if req.UserID != callerID && !middleware.IsAdmin(c) {
		writeError(c, rewards.KindPermissionDenied, "You can only earn points for yourself")
		return
	}

	res, err := h.Service.EarnPoints(c.Request.Context(), rewards.EarnRequest{
		UserID:      req.UserID,
		Points:      req.Points,
		OrderID:     req.OrderID,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RewardsHandler) Redeem(c *gin.Context) {
	var req dtos.RedeemPointsRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.Service.RedeemPoints(c.Request.Context(), rewards.RedeemRequest{
		UserID:      middleware.UserID(c),
		Points:      req.Points,
		RewardID:    req.RewardID,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RewardsHandler) ValidateCoupon(c *gin.Context) {
	res, err := h.Service.ValidateRedemptionCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RewardsHandler) MarkCouponUsed(c *gin.Context) {
	var req dtos.MarkCouponUsedRequest
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	res, err := h.Service.MarkCouponUsed(c.Request.Context(), rewards.MarkUsedRequest{
		Code:          c.Param("code"),
		CallerID:      middleware.UserID(c),
		CallerIsAdmin: middleware.IsAdmin(c),
		OrderID:       req.OrderID,
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RewardsHandler) Spin(c *gin.Context) {
	res, err := h.Service.Spin(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RewardsHandler) Referral(c *gin.Context) {
	var req dtos.ReferralRequest
	if !bindJSON(c, &req) {
		return
	}

	callerID := middleware.UserID(c)
	if req.NewUserID == "" {
		req.NewUserID = callerID
	}

	res, err := h.Service.ProcessReferralBonus(c.Request.Context(), rewards.ReferralRequest{
		ReferrerID:    req.ReferrerID,
		RefereeID:     req.NewUserID,
		Code:          req.ReferralCode,
		CallerID:      callerID,
		CallerIsAdmin: middleware.IsAdmin(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *RewardsHandler) ReferralCode(c *gin.Context) {
	callerID := middleware.UserID(c)
	userID := c.DefaultQuery("userId", callerID)

	code, err := h.Service.GetReferralCode(c.Request.Context(), callerID, middleware.IsAdmin(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "referral_code": code})
}

func (h *RewardsHandler) Profile(c *gin.Context) {
	profile, created, err := h.Service.GetOrCreateProfile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	next, remaining := rewards.NextTier(profile.LifetimePoints)
	c.JSON(http.StatusOK, profileResponse{
		LoyaltyProfile:   profile,
		NextTier:         next,
		PointsToNextTier: remaining,
		Created:          created,
	})
}

func (h *RewardsHandler) History(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		writeError(c, rewards.KindInvalidArgument, "limit must be a number")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		writeError(c, rewards.KindInvalidArgument, "offset must be a number")
		return
	}

	page, err := h.Service.History(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *RewardsHandler) Redemptions(c *gin.Context) {
	items, err := h.Service.ListRedemptions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *RewardsHandler) SetBirthday(c *gin.Context) {
	var req dtos.SetBirthdayRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.Service.SetBirthday(c.Request.Context(), middleware.UserID(c), req.Birthday)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Catalog lists the active rewards.
func (h *RewardsHandler) Catalog(c *gin.Context) {
	items, err := h.Service.ListRewards(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
