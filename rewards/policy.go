package rewards

import (
	"time"

	"rewards-backend/models"

	"github.com/shopspring/decimal"
)

// Lifetime point thresholds for each tier.
const (
	SilverThreshold   = 500
	GoldThreshold     = 1500
	PlatinumThreshold = 3000
)

// TierFor maps lifetime points to a tier.
func TierFor(lifetimePoints int) models.Tier {
	switch {
	case lifetimePoints >= PlatinumThreshold:
		return models.TierPlatinum
	case lifetimePoints >= GoldThreshold:
		return models.TierGold
	case lifetimePoints >= SilverThreshold:
		return models.TierSilver
	default:
		return models.TierBronze
	}
}

// NextTier returns the tier after the one lifetimePoints earns and how many more lifetime
// points reach it. Platinum members get ("", 0).
func NextTier(lifetimePoints int) (models.Tier, int) {
	switch {
	case lifetimePoints < SilverThreshold:
		return models.TierSilver, SilverThreshold - lifetimePoints
	case lifetimePoints < GoldThreshold:
		return models.TierGold, GoldThreshold - lifetimePoints
	case lifetimePoints < PlatinumThreshold:
		return models.TierPlatinum, PlatinumThreshold - lifetimePoints
	}
	return "", 0
}

// SpinOutcome is one slice of a tier's prize wheel.
type SpinOutcome struct {
	Result      models.SpinResult
	Probability float64
	Value       decimal.Decimal // points for SpinPoints, dollars otherwise
	Cogs        decimal.Decimal
}

// Policy holds every business constant of the ledger.
type Policy struct {
	MinEarnPoints int
	MaxEarnPoints int

	PointsPerDollar     decimal.Decimal
	TierMultipliers     map[models.Tier]decimal.Decimal
	MinPaymentCents     int64
	SupportedCurrencies []string

	DollarPerPoint      decimal.Decimal
	MaxGivebackPercent  decimal.Decimal
	CogsWindow          time.Duration
	MaxDailyRedemptions int
	RedemptionTTL       time.Duration

	DailySpinCogsCap decimal.Decimal
	SpinTables       map[models.Tier][]SpinOutcome

	ReferrerBonus int
	RefereeBonus  int
	BirthdayBonus int

	MaxAdminAdjustment int

	BirthdayWorkers int
	// Location defines calendar days for spins, birthdays and daily limits.
	Location *time.Location
}

const (
	spinPointCogs = "0.01"
	freeItemCogs  = "3.00"
)

func pointsOutcome(p float64, points int64) SpinOutcome {
	v := decimal.NewFromInt(points)
	return SpinOutcome{Result: models.SpinPoints, Probability: p, Value: v, Cogs: v.Mul(decimal.RequireFromString(spinPointCogs))}
}

func discountOutcome(p float64, dollars int64) SpinOutcome {
	v := decimal.NewFromInt(dollars)
	return SpinOutcome{Result: models.SpinDiscount, Probability: p, Value: v, Cogs: v}
}

func freeItemOutcome(p float64) SpinOutcome {
	c := decimal.RequireFromString(freeItemCogs)
	return SpinOutcome{Result: models.SpinFreeItem, Probability: p, Value: c, Cogs: c}
}

func nothingOutcome(p float64) SpinOutcome {
	return SpinOutcome{Result: models.SpinNothing, Probability: p, Value: decimal.Zero, Cogs: decimal.Zero}
}

// DefaultSpinTables returns the prize wheel per tier. Probabilities of a tier sum to 1.
func DefaultSpinTables() map[models.Tier][]SpinOutcome {
	return map[models.Tier][]SpinOutcome{
		models.TierBronze: {
			nothingOutcome(0.50), pointsOutcome(0.40, 25), discountOutcome(0.10, 2),
		},
		models.TierSilver: {
			nothingOutcome(0.40), pointsOutcome(0.40, 50), discountOutcome(0.15, 3), freeItemOutcome(0.05),
		},
		models.TierGold: {
			nothingOutcome(0.30), pointsOutcome(0.40, 75), discountOutcome(0.20, 5), freeItemOutcome(0.10),
		},
		models.TierPlatinum: {
			nothingOutcome(0.20), pointsOutcome(0.40, 100), discountOutcome(0.25, 5), freeItemOutcome(0.15),
		},
	}
}

func DefaultPolicy() Policy {
	return Policy{
		MinEarnPoints: 1,
		MaxEarnPoints: 10000,

		PointsPerDollar: decimal.NewFromInt(10),
		TierMultipliers: map[models.Tier]decimal.Decimal{
			models.TierBronze:   decimal.NewFromInt(1),
			models.TierSilver:   decimal.RequireFromString("1.25"),
			models.TierGold:     decimal.RequireFromString("1.5"),
			models.TierPlatinum: decimal.NewFromInt(2),
		},
		MinPaymentCents:     100,
		SupportedCurrencies: []string{"USD"},

		DollarPerPoint:      decimal.RequireFromString("0.10"),
		MaxGivebackPercent:  decimal.NewFromInt(8),
		CogsWindow:          30 * 24 * time.Hour,
		MaxDailyRedemptions: 5,
		RedemptionTTL:       30 * 24 * time.Hour,

		DailySpinCogsCap: decimal.NewFromInt(50),
		SpinTables:       DefaultSpinTables(),

		ReferrerBonus: 200,
		RefereeBonus:  100,
		BirthdayBonus: 100,

		MaxAdminAdjustment: 10000,

		BirthdayWorkers: 4,
		Location:        time.UTC,
	}
}

// Multiplier returns the earn multiplier for a tier, 1 when unset.
func (p Policy) Multiplier(t models.Tier) decimal.Decimal {
	if m, ok := p.TierMultipliers[t]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// startOfDay returns midnight of t's calendar day in the policy location, as UTC.
func (p Policy) startOfDay(t time.Time) time.Time {
	local := t.In(p.location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.location()).UTC()
}

func (p Policy) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(p.location()).Date()
	by, bm, bd := b.In(p.location()).Date()
	return ay == by && am == bm && ad == bd
}

func (p Policy) supportsCurrency(c string) bool {
	for _, s := range p.SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}
