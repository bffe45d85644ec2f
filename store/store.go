// Package store is the persistence boundary of the rewards ledger. Engines describe a unit
// of work as a closure over Tx; the adapter commits it atomically or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"rewards-backend/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a transaction kept losing write conflicts after retries.
	ErrConflict = errors.New("transaction conflict")
)

// Store runs units of work. fn may be invoked more than once when the underlying
// database reports a serialization conflict, so it must not have side effects
// outside of tx.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside one transaction.
type Tx interface {
	GetProfile(userID string, forUpdate bool) (*models.LoyaltyProfile, error)
	CreateProfile(p *models.LoyaltyProfile) error
	SaveProfile(p *models.LoyaltyProfile) error
	UpdateProfile(userID string, fields map[string]interface{}) error
	ProfileByReferralCode(code string) (*models.LoyaltyProfile, error)
	ProfilesByBirthday(monthDays ...string) ([]models.LoyaltyProfile, error)
	TierDistribution() (map[models.Tier]int64, error)

	AppendTransaction(t *models.PointsTransaction) error
	FindEarnedByOrder(orderID string) (*models.PointsTransaction, error)
	ListTransactions(userID string, limit, offset int) ([]models.PointsTransaction, int64, error)
	SumDeltas(userID string) (int, error)
	LedgerTotals(since time.Time) (LedgerTotals, error)

	GetReward(id string) (*models.RewardCatalog, error)
	ListRewards(activeOnly bool) ([]models.RewardCatalog, error)
	CreateRedemption(r *models.UserRedemption) error
	GetRedemptionByCode(code string, forUpdate bool) (*models.UserRedemption, error)
	SaveRedemption(r *models.UserRedemption) error
	ListRedemptions(userID string) ([]models.UserRedemption, error)
	RedemptionTotals(since time.Time) (RedemptionTotals, error)
	CountUserRedemptionsSince(userID string, since time.Time) (int64, error)
	TopRewards(since time.Time, limit int) ([]RewardStat, error)

	LatestSpin(userID string) (*models.SpinHistory, error)
	SpinCogsSince(since time.Time) (decimal.Decimal, error)
	CreateSpin(s *models.SpinHistory) error

	GetReferral(refereeID string, forUpdate bool) (*models.ReferralBonus, error)
	CreateReferral(r *models.ReferralBonus) error
	SaveReferral(r *models.ReferralBonus) error

	CreateAudit(a *models.AuditLog) error
	CreateJobRun(j *models.JobRun) error
}

// RedemptionTotals aggregates point redemptions over a window. Spin coupons are excluded.
type RedemptionTotals struct {
	Count  int64
	Points int64
	Cogs   decimal.Decimal
}

// LedgerTotals sums positive and negative ledger deltas over a window.
type LedgerTotals struct {
	Issued   int64
	Redeemed int64
}

type RewardStat struct {
	RewardID    string `json:"reward_id"`
	RewardName  string `json:"reward_name"`
	Redemptions int64  `json:"redemptions"`
	Points      int64  `json:"points"`
}
