package rewards

import (
	"context"
	"errors"
	"fmt"

	"rewards-backend/models"
	"rewards-backend/store"

	"github.com/google/uuid"
)

type EarnRequest struct {
	UserID      string
	Points      int
	OrderID     string
	Description string
	Metadata    map[string]interface{}
}

type EarnResult struct {
	Success           bool        `json:"success"`
	TransactionID     uuid.UUID   `json:"transaction_id"`
	PointsAwarded     int         `json:"points_awarded"`
	NewBalance        int         `json:"new_balance"`
	NewLifetimePoints int         `json:"new_lifetime_points"`
	NewTier           models.Tier `json:"new_tier"`
	TierChanged       bool        `json:"tier_changed"`
	Duplicate         bool        `json:"duplicate,omitempty"`
}

// EarnPoints credits points to a member. An order id is credited once: a replay for the
// same member returns the original transaction with Duplicate set, and a replay for a
// different member is rejected with AlreadyExists.
func (s *Service) EarnPoints(ctx context.Context, req EarnRequest) (*EarnResult, error) {
	if req.UserID == "" {
		return nil, newError(KindInvalidArgument, "user id is required")
	}
	if req.Points < s.policy.MinEarnPoints || req.Points > s.policy.MaxEarnPoints {
		return nil, newError(KindInvalidArgument, "points must be an integer between %d and %d", s.policy.MinEarnPoints, s.policy.MaxEarnPoints)
	}
	return s.earn(ctx, req, func(*models.LoyaltyProfile) int { return req.Points })
}

// earn runs the credit with the amount computed from the locked profile.
func (s *Service) earn(ctx context.Context, req EarnRequest, amount func(*models.LoyaltyProfile) int) (*EarnResult, error) {
	description := req.Description
	if description == "" {
		description = "Points earned"
		if req.OrderID != "" {
			description = "Points earned for order " + req.OrderID
		}
	}

	attempt := func() (*EarnResult, *models.PointsTransaction, tierChange, error) {
		var res *EarnResult
		var entry *models.PointsTransaction
		var change tierChange
		err := s.runInTx(ctx, func(tx store.Tx) error {
			p, _, err := s.lockProfile(tx, req.UserID)
			if err != nil {
				return err
			}

			if req.OrderID != "" {
				existing, err := tx.FindEarnedByOrder(req.OrderID)
				if err == nil && existing.UserID != req.UserID {
					return newError(KindAlreadyExists, "order %s was already credited to another member", req.OrderID)
				}
				if err == nil {
					res = &EarnResult{
						Success:           true,
						TransactionID:     existing.ID,
						NewBalance:        p.Points,
						NewLifetimePoints: p.LifetimePoints,
						NewTier:           p.Tier,
						Duplicate:         true,
					}
					return nil
				}
				if !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}

			points := amount(p)
			if points < 1 {
				res = &EarnResult{Success: true, NewBalance: p.Points, NewLifetimePoints: p.LifetimePoints, NewTier: p.Tier}
				return nil
			}

			entry, change, err = s.apply(tx, p, mutation{
				delta:    points,
				lifetime: points,
				entry: models.PointsTransaction{
					Type:        models.TransactionEarned,
					Description: description,
					OrderID:     strPtr(req.OrderID),
					Metadata:    jsonMap(req.Metadata),
				},
			})
			if err != nil {
				return err
			}
			res = &EarnResult{
				Success:           true,
				TransactionID:     entry.ID,
				PointsAwarded:     points,
				NewBalance:        p.Points,
				NewLifetimePoints: p.LifetimePoints,
				NewTier:           p.Tier,
				TierChanged:       change.Changed,
			}
			return nil
		})
		return res, entry, change, err
	}

	res, entry, change, err := attempt()
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent delivery of the same order won the unique index; the retry sees it.
		res, entry, change, err = attempt()
	}
	if err != nil {
		return nil, fmt.Errorf("earn points: %w", err)
	}

	s.committed(ctx, entry, change)
	if entry != nil {
		s.logger.Info("points earned", "user_id", req.UserID, "points", res.PointsAwarded, "order_id", req.OrderID, "balance", res.NewBalance)
	}
	return res, nil
}
