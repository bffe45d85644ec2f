package rewards

import (
	"context"
	"time"

	"rewards-backend/models"
	"rewards-backend/store"

	"github.com/shopspring/decimal"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
	topRewardsLimit      = 10
)

type AnalyticsSummary struct {
	WindowDays         int                   `json:"window_days"`
	Since              time.Time             `json:"since"`
	GeneratedAt        time.Time             `json:"generated_at"`
	GivebackPercentage decimal.Decimal       `json:"giveback_percentage"`
	GivebackCeiling    decimal.Decimal       `json:"giveback_ceiling"`
	TotalCogs          decimal.Decimal       `json:"total_cogs"`
	TotalDollarValue   decimal.Decimal       `json:"total_dollar_value"`
	RedemptionCount    int64                 `json:"redemption_count"`
	PointsIssued       int64                 `json:"points_issued"`
	PointsRedeemed     int64                 `json:"points_redeemed"`
	TierDistribution   map[models.Tier]int64 `json:"tier_distribution"`
	TopRewards         []store.RewardStat    `json:"top_rewards"`
	SpinCogsToday      decimal.Decimal       `json:"spin_cogs_today"`
	SpinBudgetToday    decimal.Decimal       `json:"spin_budget_today"`
}

// Analytics aggregates program health over the trailing window of days.
func (s *Service) Analytics(ctx context.Context, days int) (*AnalyticsSummary, error) {
	if days <= 0 {
		days = defaultAnalyticsDays
	}
	if days > maxAnalyticsDays {
		return nil, newError(KindInvalidArgument, "days must be at most %d", maxAnalyticsDays)
	}

	now := s.clock.Now()
	summary := &AnalyticsSummary{
		WindowDays:      days,
		Since:           now.AddDate(0, 0, -days),
		GeneratedAt:     now,
		GivebackCeiling: s.policy.MaxGivebackPercent,
		SpinBudgetToday: s.policy.DailySpinCogsCap,
	}

	err := s.runInTx(ctx, func(tx store.Tx) error {
		redemptions, err := tx.RedemptionTotals(summary.Since)
		if err != nil {
			return err
		}
		ledger, err := tx.LedgerTotals(summary.Since)
		if err != nil {
			return err
		}
		dist, err := tx.TierDistribution()
		if err != nil {
			return err
		}
		top, err := tx.TopRewards(summary.Since, topRewardsLimit)
		if err != nil {
			return err
		}
		spin, err := tx.SpinCogsSince(s.policy.startOfDay(now))
		if err != nil {
			return err
		}

		summary.TotalCogs = redemptions.Cogs
		summary.RedemptionCount = redemptions.Count
		summary.TotalDollarValue = decimal.NewFromInt(redemptions.Points).Mul(s.policy.DollarPerPoint)
		if pct, ok := s.policy.GivebackPercent(redemptions.Cogs, redemptions.Points); ok {
			summary.GivebackPercentage = pct.Round(2)
		}
		summary.PointsIssued = ledger.Issued
		summary.PointsRedeemed = ledger.Redeemed
		summary.TierDistribution = dist
		summary.TopRewards = top
		summary.SpinCogsToday = spin
		return nil
	})
	if err != nil {
		return nil, err
	}
	if summary.TopRewards == nil {
		summary.TopRewards = []store.RewardStat{}
	}
	return summary, nil
}
