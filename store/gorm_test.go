package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"rewards-backend/database"
	"rewards-backend/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func freshStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewGormStore(db), db
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	s, db := freshStore(t)
	boom := errors.New("boom")

	err := s.RunInTx(context.Background(), func(tx Tx) error {
		if err := tx.CreateProfile(&models.LoyaltyProfile{UserID: "u1", Tier: models.TierBronze}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	db.Model(&models.LoyaltyProfile{}).Count(&count)
	if count != 0 {
		t.Errorf("expected rollback, found %d profiles", count)
	}
}

func TestRunInTxRetriesSerializationFailures(t *testing.T) {
	s, _ := freshStore(t)
	attempts := 0

	err := s.RunInTx(context.Background(), func(tx Tx) error {
		attempts++
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRunInTxSucceedsAfterTransientConflict(t *testing.T) {
	s, _ := freshStore(t)
	attempts := 0

	err := s.RunInTx(context.Background(), func(tx Tx) error {
		attempts++
		if attempts == 1 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestNotFoundAndDuplicateTranslation(t *testing.T) {
	s, _ := freshStore(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.GetProfile("missing", true)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	code := "ABC123"
	create := func(tx Tx) error {
		return tx.CreateProfile(&models.LoyaltyProfile{UserID: "u-" + time.Now().String(), Tier: models.TierBronze, ReferralCode: &code})
	}
	if err := s.RunInTx(ctx, create); err != nil {
		t.Fatal(err)
	}
	if err := s.RunInTx(ctx, create); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestRedemptionTotalsExcludeSpinCoupons(t *testing.T) {
	s, _ := freshStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []models.UserRedemption{
		{UserID: "u1", RewardID: "a", RewardName: "A", PointsRedeemed: 500, EstimatedCogsValue: decimal.RequireFromString("1.10"), RedemptionCode: "RW-1", Source: models.SourceRedemption, Status: models.RedemptionActive, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
		{UserID: "u2", RewardID: "a", RewardName: "A", PointsRedeemed: 500, EstimatedCogsValue: decimal.RequireFromString("1.20"), RedemptionCode: "RW-2", Source: models.SourceRedemption, Status: models.RedemptionUsed, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
		{UserID: "u1", RewardID: "b", RewardName: "B", PointsRedeemed: 100, EstimatedCogsValue: decimal.RequireFromString("0.50"), RedemptionCode: "RW-3", Source: models.SourceRedemption, Status: models.RedemptionActive, CreatedAt: now.Add(-40 * 24 * time.Hour), ExpiresAt: now},
		{UserID: "u1", RewardID: "spin_discount", RewardName: "$2 off", EstimatedCogsValue: decimal.NewFromInt(2), RedemptionCode: "SP-1", Source: models.SourceSpin, Status: models.RedemptionActive, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}

	var totals RedemptionTotals
	var userCount int64
	var top []RewardStat
	err := s.RunInTx(ctx, func(tx Tx) error {
		for i := range rows {
			if err := tx.CreateRedemption(&rows[i]); err != nil {
				return err
			}
		}
		var err error
		since := now.Add(-30 * 24 * time.Hour)
		if totals, err = tx.RedemptionTotals(since); err != nil {
			return err
		}
		if userCount, err = tx.CountUserRedemptionsSince("u1", since); err != nil {
			return err
		}
		top, err = tx.TopRewards(since, 5)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if totals.Count != 2 || totals.Points != 1000 {
		t.Errorf("unexpected totals %+v", totals)
	}
	if !totals.Cogs.Equal(decimal.RequireFromString("2.30")) {
		t.Errorf("expected cogs 2.30, got %s", totals.Cogs)
	}
	if userCount != 1 {
		t.Errorf("expected 1 redemption for u1 in window, got %d", userCount)
	}
	if len(top) != 1 || top[0].RewardID != "a" || top[0].Redemptions != 2 {
		t.Errorf("unexpected top rewards %+v", top)
	}
}

func TestLedgerAggregates(t *testing.T) {
	s, _ := freshStore(t)
	ctx := context.Background()

	var sum int
	var totals LedgerTotals
	err := s.RunInTx(ctx, func(tx Tx) error {
		for _, d := range []int{100, 50, -30, 0} {
			if err := tx.AppendTransaction(&models.PointsTransaction{UserID: "u1", Delta: d, Type: models.TransactionEarned}); err != nil {
				return err
			}
		}
		var err error
		if sum, err = tx.SumDeltas("u1"); err != nil {
			return err
		}
		totals, err = tx.LedgerTotals(time.Now().UTC().Add(-time.Hour))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum != 120 {
		t.Errorf("expected sum 120, got %d", sum)
	}
	if totals.Issued != 150 || totals.Redeemed != 30 {
		t.Errorf("unexpected ledger totals %+v", totals)
	}
}

func TestTierDistributionIncludesEmptyTiers(t *testing.T) {
	s, _ := freshStore(t)
	var dist map[models.Tier]int64
	err := s.RunInTx(context.Background(), func(tx Tx) error {
		tx.CreateProfile(&models.LoyaltyProfile{UserID: "a", Tier: models.TierBronze})
		tx.CreateProfile(&models.LoyaltyProfile{UserID: "b", Tier: models.TierBronze})
		tx.CreateProfile(&models.LoyaltyProfile{UserID: "c", Tier: models.TierGold})
		var err error
		dist, err = tx.TierDistribution()
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if dist[models.TierBronze] != 2 || dist[models.TierGold] != 1 || dist[models.TierPlatinum] != 0 {
		t.Errorf("unexpected distribution %v", dist)
	}
	if len(dist) != 4 {
		t.Errorf("expected all 4 tiers, got %d", len(dist))
	}
}

func TestProfilesByBirthday(t *testing.T) {
	s, _ := freshStore(t)
	b1, b2 := "02-28", "02-29"
	var found []models.LoyaltyProfile
	err := s.RunInTx(context.Background(), func(tx Tx) error {
		tx.CreateProfile(&models.LoyaltyProfile{UserID: "a", Tier: models.TierBronze, Birthday: &b1})
		tx.CreateProfile(&models.LoyaltyProfile{UserID: "b", Tier: models.TierBronze, Birthday: &b2})
		tx.CreateProfile(&models.LoyaltyProfile{UserID: "c", Tier: models.TierBronze})
		var err error
		found, err = tx.ProfilesByBirthday(b1, b2)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 || found[0].UserID != "a" || found[1].UserID != "b" {
		t.Errorf("unexpected profiles %+v", found)
	}
}
