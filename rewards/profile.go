package rewards

import (
	"context"
	"errors"
	"time"

	"rewards-backend/models"
	"rewards-backend/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type HistoryPage struct {
	Items  []models.PointsTransaction `json:"items"`
	Total  int64                      `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

// History lists ledger entries for the member, newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) (*HistoryPage, error) {
	if userID == "" {
		return nil, newError(KindInvalidArgument, "user id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	page := &HistoryPage{Limit: limit, Offset: offset}
	err := s.runInTx(ctx, func(tx store.Tx) error {
		items, total, err := tx.ListTransactions(userID, limit, offset)
		page.Items, page.Total = items, total
		return err
	})
	if err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []models.PointsTransaction{}
	}
	return page, nil
}

type LedgerCheck struct {
	UserID     string `json:"user_id"`
	Balance    int    `json:"balance"`
	LedgerSum  int    `json:"ledger_sum"`
	Consistent bool   `json:"consistent"`
}

// VerifyLedger compares the stored balance with the sum of the member's ledger deltas.
func (s *Service) VerifyLedger(ctx context.Context, userID string) (*LedgerCheck, error) {
	check := &LedgerCheck{UserID: userID}
	err := s.runInTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProfile(userID, false)
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "loyalty profile not found")
		}
		if err != nil {
			return err
		}
		sum, err := tx.SumDeltas(userID)
		if err != nil {
			return err
		}
		check.Balance, check.LedgerSum = p.Points, sum
		check.Consistent = p.Points == sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

// SetBirthday records the member's birthday as MM-DD. It can only be set once.
func (s *Service) SetBirthday(ctx context.Context, userID, monthDay string) (*models.LoyaltyProfile, error) {
	if userID == "" {
		return nil, newError(KindInvalidArgument, "user id is required")
	}
	if _, err := time.Parse("01-02", monthDay); err != nil || len(monthDay) != 5 {
		return nil, newError(KindInvalidArgument, "birthday must be formatted as MM-DD")
	}

	var profile *models.LoyaltyProfile
	err := s.runInTx(ctx, func(tx store.Tx) error {
		p, _, err := s.lockProfile(tx, userID)
		if err != nil {
			return err
		}
		if p.Birthday != nil {
			return newError(KindFailedPrecondition, "birthday is already set and cannot be changed")
		}
		now := s.clock.Now()
		if err := tx.UpdateProfile(userID, map[string]interface{}{"birthday": monthDay, "updated_at": now}); err != nil {
			return err
		}
		p.Birthday = &monthDay
		p.UpdatedAt = now
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}
