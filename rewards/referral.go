package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/store"

	"github.com/google/uuid"
)

type ReferralRequest struct {
	ReferrerID    string
	RefereeID     string
	Code          string
	CallerID      string
	CallerIsAdmin bool
}

type ReferralResult struct {
	Success          bool      `json:"success"`
	ReferralID       uuid.UUID `json:"referral_id"`
	ReferrerPoints   int       `json:"referrer_points"`
	RefereePoints    int       `json:"referee_points"`
	RefereeBalance   int       `json:"referee_balance"`
	ReferrerCredited bool      `json:"referrer_credited"`
}

// ProcessReferralBonus pays both sides of a referral. The referee is credited first,
// together with the referral record that prevents replays; the referrer is credited in
// a second transaction. When that second step fails the result reports
// ReferrerCredited false, and replaying the same referral completes it.
func (s *Service) ProcessReferralBonus(ctx context.Context, req ReferralRequest) (*ReferralResult, error) {
	code := normalizeCode(req.Code)
	if req.ReferrerID == "" || req.RefereeID == "" || code == "" {
		return nil, newError(KindInvalidArgument, "referrerId, newUserId and referralCode are required")
	}
	if req.ReferrerID == req.RefereeID {
		return nil, newError(KindInvalidArgument, "users cannot refer themselves")
	}
	if !req.CallerIsAdmin && req.CallerID != req.RefereeID {
		return nil, newError(KindPermissionDenied, "only the referred user or an admin can claim a referral")
	}

	if _, err := s.requireUser(ctx, req.ReferrerID, "referrer"); err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, req.RefereeID, "referred user"); err != nil {
		return nil, err
	}

	res := &ReferralResult{ReferrerPoints: s.policy.ReferrerBonus, RefereePoints: s.policy.RefereeBonus}
	var refereeEntry *models.PointsTransaction
	var refereeChange tierChange
	var resumed bool
	err := s.runInTx(ctx, func(tx store.Tx) error {
		refereeEntry, resumed = nil, false
		referrer, err := tx.GetProfile(req.ReferrerID, false)
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindInvalidArgument, "invalid referral code")
		}
		if err != nil {
			return err
		}
		if referrer.ReferralCode == nil || !strings.EqualFold(*referrer.ReferralCode, code) {
			return newError(KindInvalidArgument, "invalid referral code")
		}

		referee, _, err := s.lockProfile(tx, req.RefereeID)
		if err != nil {
			return err
		}

		existing, err := tx.GetReferral(req.RefereeID, true)
		switch {
		case err == nil:
			if existing.ReferrerUserID != req.ReferrerID || existing.ReferrerCreditedAt != nil {
				return newError(KindAlreadyExists, "referral bonus already processed")
			}
			// The referee side committed earlier but the referrer was never paid.
			resumed = true
			res.ReferralID = existing.ID
			res.RefereeBalance = referee.Points
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if referee.ReferredBy != nil {
			return newError(KindAlreadyExists, "user has already been referred")
		}

		referee.ReferredBy = &req.ReferrerID
		refereeEntry, refereeChange, err = s.apply(tx, referee, mutation{
			delta:    s.policy.RefereeBonus,
			lifetime: s.policy.RefereeBonus,
			entry: models.PointsTransaction{
				Type:        models.TransactionReferralBonus,
				Description: "Welcome bonus for joining with a referral",
				Metadata:    map[string]interface{}{"referrer_id": req.ReferrerID, "role": "referee"},
			},
		})
		if err != nil {
			return err
		}

		bonus := &models.ReferralBonus{
			ReferrerUserID: req.ReferrerID,
			RefereeUserID:  req.RefereeID,
			ReferralCode:   code,
			ReferrerPoints: s.policy.ReferrerBonus,
			RefereePoints:  s.policy.RefereeBonus,
			CreatedAt:      s.clock.Now(),
		}
		if err := tx.CreateReferral(bonus); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return newError(KindAlreadyExists, "user has already been referred")
			}
			return err
		}
		res.ReferralID = bonus.ID
		res.RefereeBalance = referee.Points
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Success = true
	if !resumed {
		s.committed(ctx, refereeEntry, refereeChange)
		s.notify(ctx, notify.Notification{
			Kind:    notify.KindReferralBonus,
			UserID:  req.RefereeID,
			Title:   "Welcome bonus",
			Message: fmt.Sprintf("You earned %d points for joining with a referral.", s.policy.RefereeBonus),
		})
	}

	var referrerEntry *models.PointsTransaction
	var referrerChange tierChange
	err = s.runInTx(ctx, func(tx store.Tx) error {
		referrerEntry = nil
		bonus, err := tx.GetReferral(req.RefereeID, true)
		if err != nil {
			return err
		}
		if bonus.ReferrerCreditedAt != nil {
			return newError(KindAlreadyExists, "referral bonus already processed")
		}

		referrer, _, err := s.lockProfile(tx, req.ReferrerID)
		if err != nil {
			return err
		}
		referrerEntry, referrerChange, err = s.apply(tx, referrer, mutation{
			delta:    s.policy.ReferrerBonus,
			lifetime: s.policy.ReferrerBonus,
			entry: models.PointsTransaction{
				Type:        models.TransactionReferralBonus,
				Description: "Referral bonus for inviting a friend",
				Metadata:    map[string]interface{}{"referee_id": req.RefereeID, "referral_id": bonus.ID.String(), "role": "referrer"},
			},
		})
		if err != nil {
			return err
		}
		now := s.clock.Now()
		bonus.ReferrerCreditedAt = &now
		return tx.SaveReferral(bonus)
	})
	if err != nil {
		if IsKind(err, KindAlreadyExists) {
			return nil, err
		}
		s.logger.Error("referrer credit failed, replay the referral to retry", "referral_id", res.ReferralID, "referrer_id", req.ReferrerID, "error", err)
		return res, nil
	}
	s.committed(ctx, referrerEntry, referrerChange)
	res.ReferrerCredited = true

	s.logger.Info("referral processed", "referral_id", res.ReferralID, "referrer_id", req.ReferrerID, "referee_id", req.RefereeID, "resumed", resumed)
	s.notify(ctx, notify.Notification{
		Kind:    notify.KindReferralBonus,
		UserID:  req.ReferrerID,
		Title:   "Your friend joined",
		Message: fmt.Sprintf("You earned %d points for referring a friend.", s.policy.ReferrerBonus),
	})
	return res, nil
}

// GetReferralCode returns the member's referral code, generating one on first use.
func (s *Service) GetReferralCode(ctx context.Context, callerID string, callerIsAdmin bool, userID string) (string, error) {
	if userID == "" {
		userID = callerID
	}
	if userID == "" {
		return "", newError(KindInvalidArgument, "user id is required")
	}
	if userID != callerID && !callerIsAdmin {
		return "", newError(KindPermissionDenied, "you can only view your own referral code")
	}

	var code string
	err := s.runInTx(ctx, func(tx store.Tx) error {
		code = ""
		p, _, err := s.lockProfile(tx, userID)
		if err != nil {
			return err
		}
		if p.ReferralCode != nil {
			code = *p.ReferralCode
			return nil
		}

		for i := 0; i < maxCodeAttempts; i++ {
			candidate, err := randomCode(referralCodeLength)
			if err != nil {
				return err
			}
			_, err = tx.ProfileByReferralCode(candidate)
			if errors.Is(err, store.ErrNotFound) {
				code = candidate
				break
			}
			if err != nil {
				return err
			}
		}
		if code == "" {
			return fmt.Errorf("could not generate a unique referral code")
		}

		p.ReferralCode = &code
		p.UpdatedAt = s.clock.Now()
		return tx.SaveProfile(p)
	})
	if err != nil {
		return "", err
	}
	return code, nil
}
