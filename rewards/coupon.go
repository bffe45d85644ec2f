package rewards

import (
	"context"
	"errors"
	"strings"
	"time"

	"rewards-backend/models"
	"rewards-backend/store"

	"github.com/google/uuid"
)

// Reasons a coupon fails validation.
const (
	CouponNotFound    = "not_found"
	CouponAlreadyUsed = "already_used"
	CouponExpired     = "expired"
)

type CouponValidation struct {
	Valid      bool                   `json:"valid"`
	Reason     string                 `json:"reason,omitempty"`
	Redemption *models.UserRedemption `json:"redemption,omitempty"`
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRedemptionCode reports whether a coupon can be used right now. It never writes.
func (s *Service) ValidateRedemptionCode(ctx context.Context, code string) (*CouponValidation, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, newError(KindInvalidArgument, "code is required")
	}

	var r *models.UserRedemption
	err := s.runInTx(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetRedemptionByCode(code, false)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return &CouponValidation{Reason: CouponNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	r.Status = r.EffectiveStatus(s.clock.Now())
	switch r.Status {
	case models.RedemptionUsed:
		return &CouponValidation{Reason: CouponAlreadyUsed, Redemption: r}, nil
	case models.RedemptionExpired:
		return &CouponValidation{Reason: CouponExpired, Redemption: r}, nil
	}
	return &CouponValidation{Valid: true, Redemption: r}, nil
}

type MarkUsedRequest struct {
	Code          string
	CallerID      string
	CallerIsAdmin bool
	OrderID       string
	Metadata      map[string]interface{}
}

type MarkUsedResult struct {
	Success      bool      `json:"success"`
	RedemptionID uuid.UUID `json:"redemption_id"`
	RewardName   string    `json:"reward_name"`
	UsedAt       time.Time `json:"used_at"`
	UsedBy       string    `json:"used_by"`
}

// MarkCouponUsed fulfils a coupon exactly once. Store staff (admins) or the coupon's
// owner may mark it.
func (s *Service) MarkCouponUsed(ctx context.Context, req MarkUsedRequest) (*MarkUsedResult, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, newError(KindInvalidArgument, "code is required")
	}
	if req.CallerID == "" {
		return nil, newError(KindUnauthenticated, "authentication required")
	}

	var res *MarkUsedResult
	err := s.runInTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetRedemptionByCode(code, true)
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "coupon not found")
		}
		if err != nil {
			return err
		}
		if !req.CallerIsAdmin && r.UserID != req.CallerID {
			return newError(KindPermissionDenied, "only store staff or the coupon owner can use this coupon")
		}

		now := s.clock.Now()
		switch r.EffectiveStatus(now) {
		case models.RedemptionUsed:
			return newError(KindFailedPrecondition, "coupon has already been used")
		case models.RedemptionExpired:
			return newError(KindFailedPrecondition, "coupon has expired")
		}

		r.Status = models.RedemptionUsed
		r.UsedAt = &now
		r.UsedBy = &req.CallerID
		r.UsedOrderID = strPtr(req.OrderID)
		if len(req.Metadata) > 0 {
			r.Metadata = jsonMap(mergeMeta(r.Metadata, req.Metadata))
		}
		if err := tx.SaveRedemption(r); err != nil {
			return err
		}

		res = &MarkUsedResult{Success: true, RedemptionID: r.ID, RewardName: r.RewardName, UsedAt: now, UsedBy: req.CallerID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("coupon used", "code", code, "used_by", req.CallerID, "order_id", req.OrderID)
	return res, nil
}

// ListRedemptions returns the member's coupons with their status as of now.
func (s *Service) ListRedemptions(ctx context.Context, userID string) ([]models.UserRedemption, error) {
	var items []models.UserRedemption
	err := s.runInTx(ctx, func(tx store.Tx) error {
		var err error
		items, err = tx.ListRedemptions(userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	if items == nil {
		items = []models.UserRedemption{}
	}
	return items, nil
}

// ListRewards returns the active catalog.
func (s *Service) ListRewards(ctx context.Context) ([]models.RewardCatalog, error) {
	var rewards []models.RewardCatalog
	err := s.runInTx(ctx, func(tx store.Tx) error {
		var err error
		rewards, err = tx.ListRewards(true)
		return err
	})
	return rewards, err
}
