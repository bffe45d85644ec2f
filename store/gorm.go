package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rewards-backend/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of a gorm connection.
type GormStore struct {
	db         *gorm.DB
	isolation  sql.IsolationLevel
	maxRetries int
}

type GormOption func(*GormStore)

// WithIsolation sets the isolation level used for every transaction.
func WithIsolation(level sql.IsolationLevel) GormOption {
	return func(s *GormStore) { s.isolation = level }
}

// WithMaxRetries bounds how many times a conflicting transaction is attempted.
func WithMaxRetries(n int) GormOption {
	return func(s *GormStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewGormStore(db *gorm.DB, opts ...GormOption) *GormStore {
	s := &GormStore{db: db, isolation: sql.LevelDefault, maxRetries: 3}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	var opts []*sql.TxOptions
	if s.isolation != sql.LevelDefault {
		opts = append(opts, &sql.TxOptions{Isolation: s.isolation})
	}

	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(&gormTx{db: db})
		}, opts...)
		if err == nil || !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("transaction conflict, retrying", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

// isRetryable reports serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return strings.Contains(err.Error(), "database is locked")
}

type gormTx struct {
	db *gorm.DB
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (t *gormTx) locked(forUpdate bool) *gorm.DB {
	if forUpdate {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *gormTx) GetProfile(userID string, forUpdate bool) (*models.LoyaltyProfile, error) {
	var p models.LoyaltyProfile
	if err := t.locked(forUpdate).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *gormTx) CreateProfile(p *models.LoyaltyProfile) error {
	return translate(t.db.Create(p).Error)
}

func (t *gormTx) SaveProfile(p *models.LoyaltyProfile) error {
	return translate(t.db.Save(p).Error)
}

func (t *gormTx) UpdateProfile(userID string, fields map[string]interface{}) error {
	res := t.db.Model(&models.LoyaltyProfile{}).Where("user_id = ?", userID).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) ProfileByReferralCode(code string) (*models.LoyaltyProfile, error) {
	var p models.LoyaltyProfile
	if err := t.db.Where("referral_code = ?", code).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *gormTx) ProfilesByBirthday(monthDays ...string) ([]models.LoyaltyProfile, error) {
	var profiles []models.LoyaltyProfile
	if len(monthDays) == 0 {
		return profiles, nil
	}
	err := t.db.Where("birthday IN ?", monthDays).Order("user_id").Find(&profiles).Error
	return profiles, translate(err)
}

func (t *gormTx) TierDistribution() (map[models.Tier]int64, error) {
	var rows []struct {
		Tier  models.Tier
		Count int64
	}
	err := t.db.Model(&models.LoyaltyProfile{}).
		Select("tier, COUNT(*) AS count").
		Group("tier").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	dist := make(map[models.Tier]int64, len(models.Tiers))
	for _, tier := range models.Tiers {
		dist[tier] = 0
	}
	for _, r := range rows {
		dist[r.Tier] = r.Count
	}
	return dist, nil
}

func (t *gormTx) AppendTransaction(p *models.PointsTransaction) error {
	return translate(t.db.Create(p).Error)
}

func (t *gormTx) FindEarnedByOrder(orderID string) (*models.PointsTransaction, error) {
	var p models.PointsTransaction
	err := t.db.Where("order_id = ? AND type = ?", orderID, models.TransactionEarned).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (t *gormTx) ListTransactions(userID string, limit, offset int) ([]models.PointsTransaction, int64, error) {
	var total int64
	q := t.db.Model(&models.PointsTransaction{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.PointsTransaction
	err := t.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&items).Error
	return items, total, err
}

func (t *gormTx) SumDeltas(userID string) (int, error) {
	var sum int64
	err := t.db.Model(&models.PointsTransaction{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	return int(sum), err
}

func (t *gormTx) LedgerTotals(since time.Time) (LedgerTotals, error) {
	var totals LedgerTotals
	err := t.db.Model(&models.PointsTransaction{}).
		Select("COALESCE(SUM(CASE WHEN delta > 0 THEN delta ELSE 0 END), 0) AS issued, "+
			"COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0) AS redeemed").
		Where("created_at >= ?", since).
		Scan(&totals).Error
	return totals, err
}

func (t *gormTx) GetReward(id string) (*models.RewardCatalog, error) {
	var r models.RewardCatalog
	if err := t.db.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormTx) ListRewards(activeOnly bool) ([]models.RewardCatalog, error) {
	var rewards []models.RewardCatalog
	q := t.db.Order("points_cost ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	return rewards, q.Find(&rewards).Error
}

func (t *gormTx) CreateRedemption(r *models.UserRedemption) error {
	return translate(t.db.Create(r).Error)
}

func (t *gormTx) GetRedemptionByCode(code string, forUpdate bool) (*models.UserRedemption, error) {
	var r models.UserRedemption
	if err := t.locked(forUpdate).Where("redemption_code = ?", code).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormTx) SaveRedemption(r *models.UserRedemption) error {
	return translate(t.db.Save(r).Error)
}

func (t *gormTx) ListRedemptions(userID string) ([]models.UserRedemption, error) {
	var items []models.UserRedemption
	err := t.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error
	return items, err
}

func (t *gormTx) RedemptionTotals(since time.Time) (RedemptionTotals, error) {
	var row struct {
		Count  int64
		Points int64
		Cogs   decimal.Decimal
	}
	err := t.db.Model(&models.UserRedemption{}).
		Select("COUNT(*) AS count, COALESCE(SUM(points_redeemed), 0) AS points, "+
			"COALESCE(SUM(estimated_cogs_value), 0) AS cogs").
		Where("source = ? AND created_at >= ?", models.SourceRedemption, since).
		Scan(&row).Error
	if err != nil {
		return RedemptionTotals{}, err
	}
	return RedemptionTotals{Count: row.Count, Points: row.Points, Cogs: row.Cogs.Round(2)}, nil
}

func (t *gormTx) CountUserRedemptionsSince(userID string, since time.Time) (int64, error) {
	var count int64
	err := t.db.Model(&models.UserRedemption{}).
		Where("user_id = ? AND source = ? AND created_at >= ?", userID, models.SourceRedemption, since).
		Count(&count).Error
	return count, err
}

func (t *gormTx) TopRewards(since time.Time, limit int) ([]RewardStat, error) {
	var stats []RewardStat
	err := t.db.Model(&models.UserRedemption{}).
		Select("reward_id, reward_name, COUNT(*) AS redemptions, COALESCE(SUM(points_redeemed), 0) AS points").
		Where("source = ? AND created_at >= ?", models.SourceRedemption, since).
		Group("reward_id, reward_name").
		Order("redemptions DESC, reward_id ASC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}

func (t *gormTx) LatestSpin(userID string) (*models.SpinHistory, error) {
	var s models.SpinHistory
	if err := t.db.Where("user_id = ?", userID).Order("spun_at DESC").First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (t *gormTx) SpinCogsSince(since time.Time) (decimal.Decimal, error) {
	var row struct {
		Cogs decimal.Decimal
	}
	err := t.db.Model(&models.SpinHistory{}).
		Select("COALESCE(SUM(cogs_value), 0) AS cogs").
		Where("spun_at >= ?", since).
		Scan(&row).Error
	return row.Cogs.Round(2), err
}

func (t *gormTx) CreateSpin(s *models.SpinHistory) error {
	return translate(t.db.Create(s).Error)
}

func (t *gormTx) GetReferral(refereeID string, forUpdate bool) (*models.ReferralBonus, error) {
	var r models.ReferralBonus
	if err := t.locked(forUpdate).Where("referee_user_id = ?", refereeID).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormTx) CreateReferral(r *models.ReferralBonus) error {
	return translate(t.db.Create(r).Error)
}

func (t *gormTx) SaveReferral(r *models.ReferralBonus) error {
	return translate(t.db.Save(r).Error)
}

func (t *gormTx) CreateAudit(a *models.AuditLog) error {
	return translate(t.db.Create(a).Error)
}

func (t *gormTx) CreateJobRun(j *models.JobRun) error {
	return translate(t.db.Create(j).Error)
}
