package rewards

import (
	"context"
	"fmt"
	"strings"

	"rewards-backend/models"
	"rewards-backend/notify"

	"github.com/shopspring/decimal"
)

// PaymentEvent is a successful charge reported by the payment processor.
type PaymentEvent struct {
	CustomerID  string `json:"customerId" binding:"required"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency" binding:"required"`
	OrderID     string `json:"orderId" binding:"required"`
}

type PaymentResult struct {
	PointsAwarded int         `json:"points_awarded"`
	Skipped       string      `json:"skipped,omitempty"`
	Earn          *EarnResult `json:"earn,omitempty"`
}

const (
	SkipUnsupportedCurrency = "unsupported_currency"
	SkipBelowMinimum        = "below_minimum"
)

// PaymentPoints converts a charge into points for a member of the given tier.
func (p Policy) PaymentPoints(amountCents int64, tier models.Tier) int {
	points := decimal.NewFromInt(amountCents).
		Div(decimal.NewFromInt(100)).
		Mul(p.PointsPerDollar).
		Mul(p.Multiplier(tier)).
		Floor().
		IntPart()
	if points > int64(p.MaxEarnPoints) {
		return p.MaxEarnPoints
	}
	return int(points)
}

// HandlePaymentSucceeded awards points for a charge. Replays of the same order are
// reported as duplicates without crediting again. Charges under the minimum, negative
// amounts included, are accepted and award nothing.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, ev PaymentEvent) (*PaymentResult, error) {
	if ev.CustomerID == "" || ev.OrderID == "" {
		return nil, newError(KindInvalidArgument, "customerId and orderId are required")
	}
	currency := strings.ToUpper(strings.TrimSpace(ev.Currency))
	if !s.policy.supportsCurrency(currency) {
		s.logger.Info("payment ignored", "reason", SkipUnsupportedCurrency, "order_id", ev.OrderID, "currency", ev.Currency)
		return &PaymentResult{Skipped: SkipUnsupportedCurrency}, nil
	}
	if ev.AmountCents < s.policy.MinPaymentCents {
		s.logger.Info("payment ignored", "reason", SkipBelowMinimum, "order_id", ev.OrderID, "amount_cents", ev.AmountCents)
		return &PaymentResult{Skipped: SkipBelowMinimum}, nil
	}

	meta := map[string]interface{}{
		"amount_cents": ev.AmountCents,
		"currency":     currency,
		"source":       "payment",
	}
	res, err := s.earn(ctx, EarnRequest{
		UserID:      ev.CustomerID,
		OrderID:     ev.OrderID,
		Description: "Points earned for order " + ev.OrderID,
		Metadata:    meta,
	}, func(p *models.LoyaltyProfile) int {
		// Runs before the ledger entry is built, so the multiplier lands in its metadata.
		meta["multiplier"] = s.policy.Multiplier(p.Tier).String()
		return s.policy.PaymentPoints(ev.AmountCents, p.Tier)
	})
	if err != nil {
		return nil, err
	}

	out := &PaymentResult{PointsAwarded: res.PointsAwarded, Earn: res}
	if res.PointsAwarded > 0 {
		s.notify(ctx, notify.Notification{
			Kind:    notify.KindPointsEarned,
			UserID:  ev.CustomerID,
			Title:   "Points earned",
			Message: fmt.Sprintf("You earned %d points on order %s. Your balance is now %d.", res.PointsAwarded, ev.OrderID, res.NewBalance),
			Data: map[string]interface{}{
				"order_id":   ev.OrderID,
				"points":     res.PointsAwarded,
				"multiplier": meta["multiplier"],
			},
		})
	}
	return out, nil
}
