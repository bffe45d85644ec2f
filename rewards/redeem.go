package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RedeemRequest struct {
	UserID      string
	Points      int
	RewardID    string
	Description string
	Metadata    map[string]interface{}
}

type RedeemResult struct {
	Success        bool      `json:"success"`
	TransactionID  uuid.UUID `json:"transaction_id"`
	RedemptionID   uuid.UUID `json:"redemption_id"`
	RedemptionCode string    `json:"redemption_code"`
	NewBalance     int       `json:"new_balance"`
	PointsRedeemed int       `json:"points_redeemed"`
	RewardName     string    `json:"reward_name"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Rejection reasons reported to metrics.
const (
	rejectInsufficient = "insufficient_points"
	rejectCogsCap      = "cogs_cap"
	rejectDailyLimit   = "daily_limit"
	rejectTier         = "tier_restricted"
)

// GivebackPercent returns cogs as a percentage of the dollar value of points. ok is
// false when no points were redeemed.
func (p Policy) GivebackPercent(cogs decimal.Decimal, points int64) (pct decimal.Decimal, ok bool) {
	dollars := decimal.NewFromInt(points).Mul(p.DollarPerPoint)
	if !dollars.IsPositive() {
		return decimal.Zero, false
	}
	return cogs.Div(dollars).Mul(decimal.NewFromInt(100)), true
}

// withinGiveback reports whether adding a redemption keeps the trailing window at or
// under the giveback ceiling.
func (p Policy) withinGiveback(window store.RedemptionTotals, rewardCogs decimal.Decimal, cost int) bool {
	pct, ok := p.GivebackPercent(window.Cogs.Add(rewardCogs), window.Points+int64(cost))
	if !ok {
		return !rewardCogs.IsPositive()
	}
	return pct.LessThanOrEqual(p.MaxGivebackPercent)
}

// RedeemPoints exchanges points for a catalog reward and issues a coupon code.
func (s *Service) RedeemPoints(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	if req.UserID == "" {
		return nil, newError(KindInvalidArgument, "user id is required")
	}
	if req.RewardID == "" {
		return nil, newError(KindInvalidArgument, "rewardId is required")
	}
	if req.Points <= 0 {
		return nil, newError(KindInvalidArgument, "points must be a positive integer")
	}

	var res *RedeemResult
	var entry *models.PointsTransaction
	var rejected string
	err := s.runInTx(ctx, func(tx store.Tx) error {
		rejected = ""
		reward, err := tx.GetReward(req.RewardID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !reward.IsActive) {
			return newError(KindNotFound, "reward %s not found", req.RewardID)
		}
		if err != nil {
			return err
		}
		if req.Points != reward.PointsCost {
			return newError(KindInvalidArgument, "reward %s costs %d points", reward.ID, reward.PointsCost)
		}

		p, _, err := s.lockProfile(tx, req.UserID)
		if err != nil {
			return err
		}
		if !reward.AllowsTier(p.Tier) {
			rejected = rejectTier
			return newError(KindPermissionDenied, "reward %s is not available for the %s tier", reward.ID, p.Tier)
		}
		if p.Points < reward.PointsCost {
			rejected = rejectInsufficient
			return newError(KindFailedPrecondition, "insufficient points: have %d, need %d", p.Points, reward.PointsCost)
		}

		now := s.clock.Now()
		window, err := tx.RedemptionTotals(now.Add(-s.policy.CogsWindow))
		if err != nil {
			return err
		}
		if !s.policy.withinGiveback(window, reward.MaxCogsValue, reward.PointsCost) {
			rejected = rejectCogsCap
			return newError(KindFailedPrecondition, "this reward is temporarily unavailable, please try again later")
		}

		today, err := tx.CountUserRedemptionsSince(req.UserID, s.policy.startOfDay(now))
		if err != nil {
			return err
		}
		if int(today) >= s.policy.MaxDailyRedemptions {
			rejected = rejectDailyLimit
			return newError(KindFailedPrecondition, "daily redemption limit of %d reached", s.policy.MaxDailyRedemptions)
		}

		code, err := s.uniqueRedemptionCode(tx, "RW-")
		if err != nil {
			return err
		}

		description := req.Description
		if description == "" {
			description = "Redeemed " + reward.Name
		}
		entry, _, err = s.apply(tx, p, mutation{
			delta: -reward.PointsCost,
			entry: models.PointsTransaction{
				Type:        models.TransactionRedeemed,
				Description: description,
				Metadata:    jsonMap(mergeMeta(req.Metadata, map[string]interface{}{"reward_id": reward.ID, "redemption_code": code})),
			},
		})
		if err != nil {
			return err
		}

		redemption := &models.UserRedemption{
			UserID:             req.UserID,
			RewardID:           reward.ID,
			RewardName:         reward.Name,
			PointsRedeemed:     reward.PointsCost,
			EstimatedCogsValue: reward.MaxCogsValue,
			RedemptionCode:     code,
			Source:             models.SourceRedemption,
			Status:             models.RedemptionActive,
			Metadata:           jsonMap(req.Metadata),
			CreatedAt:          now,
			ExpiresAt:          now.Add(s.policy.RedemptionTTL),
		}
		if err := tx.CreateRedemption(redemption); err != nil {
			return fmt.Errorf("create redemption: %w", err)
		}

		res = &RedeemResult{
			Success:        true,
			TransactionID:  entry.ID,
			RedemptionID:   redemption.ID,
			RedemptionCode: code,
			NewBalance:     p.Points,
			PointsRedeemed: reward.PointsCost,
			RewardName:     reward.Name,
			ExpiresAt:      redemption.ExpiresAt,
		}
		return nil
	})
	if rejected != "" {
		s.metrics.RecordRedemptionRejected(rejected)
	}
	if err != nil {
		return nil, err
	}

	s.committed(ctx, entry, tierChange{})
	s.logger.Info("reward redeemed", "user_id", req.UserID, "reward_id", req.RewardID, "code", res.RedemptionCode)
	s.notify(ctx, notify.Notification{
		Kind:    notify.KindRewardRedeemed,
		UserID:  req.UserID,
		Title:   "Reward redeemed",
		Message: fmt.Sprintf("You redeemed %s. Show code %s before %s.", res.RewardName, res.RedemptionCode, res.ExpiresAt.Format("Jan 2, 2006")),
		Data:    map[string]interface{}{"redemption_code": res.RedemptionCode, "reward_name": res.RewardName},
	})
	return res, nil
}

// uniqueRedemptionCode draws codes until one is unused.
func (s *Service) uniqueRedemptionCode(tx store.Tx, prefix string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		suffix, err := randomCode(redemptionCodeLength)
		if err != nil {
			return "", err
		}
		code := prefix + suffix
		_, err = tx.GetRedemptionByCode(code, false)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not generate a unique redemption code")
}

func mergeMeta(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
