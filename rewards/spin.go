package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/store"

	"github.com/shopspring/decimal"
)

type SpinResult struct {
	Result         models.SpinResult `json:"result"`
	Value          decimal.Decimal   `json:"value"`
	CogsValue      decimal.Decimal   `json:"cogs_value"`
	NewBalance     int               `json:"new_balance"`
	RedemptionCode string            `json:"redemption_code,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Downgraded     bool              `json:"downgraded"`
	Tier           models.Tier       `json:"tier"`
	SpunAt         time.Time         `json:"spun_at"`
}

// draw picks the outcome whose cumulative probability first exceeds u.
func draw(table []SpinOutcome, u float64) SpinOutcome {
	cumulative := 0.0
	for _, o := range table {
		cumulative += o.Probability
		if u < cumulative {
			return o
		}
	}
	return nothingOutcome(0)
}

// Spin plays the member's once-per-day prize wheel. Prizes that would push today's
// spin cost over the daily budget are replaced with nothing.
func (s *Service) Spin(ctx context.Context, userID string) (*SpinResult, error) {
	if userID == "" {
		return nil, newError(KindInvalidArgument, "user id is required")
	}

	var res *SpinResult
	var entry *models.PointsTransaction
	var change tierChange
	err := s.runInTx(ctx, func(tx store.Tx) error {
		entry, change = nil, tierChange{}

		p, _, err := s.lockProfile(tx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		last, err := tx.LatestSpin(userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if last != nil && s.policy.sameDay(last.SpunAt, now) {
			return newError(KindFailedPrecondition, "you have already spun today, come back tomorrow")
		}

		outcome := draw(s.policy.SpinTables[p.Tier], s.random.Float64())
		downgraded := false
		if outcome.Result != models.SpinNothing {
			spent, err := tx.SpinCogsSince(s.policy.startOfDay(now))
			if err != nil {
				return err
			}
			if spent.Add(outcome.Cogs).GreaterThan(s.policy.DailySpinCogsCap) {
				outcome = nothingOutcome(0)
				downgraded = true
			}
		}

		history := &models.SpinHistory{
			UserID:     userID,
			Result:     outcome.Result,
			Value:      outcome.Value,
			CogsValue:  outcome.Cogs,
			UserTier:   p.Tier,
			Downgraded: downgraded,
			SpunAt:     now,
		}
		if err := tx.CreateSpin(history); err != nil {
			return fmt.Errorf("record spin: %w", err)
		}

		res = &SpinResult{
			Result:     outcome.Result,
			Value:      outcome.Value,
			CogsValue:  outcome.Cogs,
			Downgraded: downgraded,
			Tier:       p.Tier,
			SpunAt:     now,
		}

		p.LastSpinAt = &now
		switch outcome.Result {
		case models.SpinPoints:
			points := int(outcome.Value.IntPart())
			entry, change, err = s.apply(tx, p, mutation{
				delta:    points,
				lifetime: points,
				entry: models.PointsTransaction{
					Type:        models.TransactionSpin,
					Description: fmt.Sprintf("Won %d points on the daily spin", points),
					Metadata:    jsonMapOf("spin_id", history.ID.String()),
				},
			})
			if err != nil {
				return err
			}
		case models.SpinDiscount, models.SpinFreeItem:
			code, err := s.uniqueRedemptionCode(tx, "SP-")
			if err != nil {
				return err
			}
			expires := now.Add(s.policy.RedemptionTTL)
			coupon := &models.UserRedemption{
				UserID:             userID,
				RewardID:           "spin_" + string(outcome.Result),
				RewardName:         spinPrizeName(outcome),
				EstimatedCogsValue: outcome.Cogs,
				RedemptionCode:     code,
				Source:             models.SourceSpin,
				Status:             models.RedemptionActive,
				Metadata:           jsonMapOf("spin_id", history.ID.String()),
				CreatedAt:          now,
				ExpiresAt:          expires,
			}
			if err := tx.CreateRedemption(coupon); err != nil {
				return fmt.Errorf("create spin coupon: %w", err)
			}
			res.RedemptionCode = code
			res.ExpiresAt = &expires
			fallthrough
		default:
			p.UpdatedAt = now
			if err := tx.SaveProfile(p); err != nil {
				return err
			}
		}
		res.Tier = p.Tier
		res.NewBalance = p.Points
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSpin(string(res.Result), res.Downgraded)
	s.committed(ctx, entry, change)
	s.logger.Info("wheel spun", "user_id", userID, "result", res.Result, "downgraded", res.Downgraded)
	if res.Result != models.SpinNothing {
		s.notify(ctx, notify.Notification{
			Kind:    notify.KindSpinWin,
			UserID:  userID,
			Title:   "You won on the daily spin",
			Message: spinMessage(res),
			Data:    map[string]interface{}{"result": res.Result, "value": res.Value.String(), "redemption_code": res.RedemptionCode},
		})
	}
	return res, nil
}

func spinPrizeName(o SpinOutcome) string {
	if o.Result == models.SpinFreeItem {
		return "Free item"
	}
	return "$" + o.Value.StringFixed(2) + " off"
}

func spinMessage(r *SpinResult) string {
	if r.Result == models.SpinPoints {
		return fmt.Sprintf("You won %s points. Your balance is now %d.", r.Value.String(), r.NewBalance)
	}
	return fmt.Sprintf("You won a coupon. Use code %s on your next order.", r.RedemptionCode)
}

func jsonMapOf(key string, value interface{}) map[string]interface{} {
	return map[string]interface{}{key: value}
}
