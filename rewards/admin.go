package rewards

import (
	"context"
	"fmt"
	"strings"

	"rewards-backend/models"
	"rewards-backend/store"

	"github.com/google/uuid"
)

type AdjustRequest struct {
	AdminID      string
	AdminIsAdmin bool
	TargetUserID string
	Delta        int
	Reason       string
	Metadata     map[string]interface{}
}

type AdjustResult struct {
	Success       bool        `json:"success"`
	TransactionID uuid.UUID   `json:"transaction_id"`
	PointsBefore  int         `json:"points_before"`
	PointsAfter   int         `json:"points_after"`
	AppliedDelta  int         `json:"applied_delta"`
	NewTier       models.Tier `json:"new_tier"`
	TierChanged   bool        `json:"tier_changed"`
}

// AdminAdjustPoints applies a manual correction. Debits floor at zero and the ledger
// records the delta actually applied, so the balance always equals the ledger sum.
func (s *Service) AdminAdjustPoints(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	if !req.AdminIsAdmin {
		return nil, newError(KindPermissionDenied, "admin access required")
	}
	reason := strings.TrimSpace(req.Reason)
	switch {
	case req.TargetUserID == "":
		return nil, newError(KindInvalidArgument, "userId is required")
	case req.Delta == 0:
		return nil, newError(KindInvalidArgument, "delta must not be zero")
	case req.Delta > s.policy.MaxAdminAdjustment || req.Delta < -s.policy.MaxAdminAdjustment:
		return nil, newError(KindInvalidArgument, "delta must be between -%d and %d", s.policy.MaxAdminAdjustment, s.policy.MaxAdminAdjustment)
	case reason == "":
		return nil, newError(KindInvalidArgument, "reason is required")
	}

	if _, err := s.requireUser(ctx, req.TargetUserID, "user"); err != nil {
		return nil, err
	}

	var res *AdjustResult
	var entry *models.PointsTransaction
	var change tierChange
	err := s.runInTx(ctx, func(tx store.Tx) error {
		p, _, err := s.lockProfile(tx, req.TargetUserID)
		if err != nil {
			return err
		}

		before := p.Points
		after := before + req.Delta
		if after < 0 {
			after = 0
		}
		lifetime := 0
		if req.Delta > 0 {
			lifetime = req.Delta
		}

		entry, change, err = s.apply(tx, p, mutation{
			delta:    after - before,
			lifetime: lifetime,
			entry: models.PointsTransaction{
				Type:        models.TransactionAdminAdjustment,
				Description: reason,
				AdminID:     &req.AdminID,
				Metadata:    jsonMap(mergeMeta(req.Metadata, map[string]interface{}{"requested_delta": req.Delta})),
			},
		})
		if err != nil {
			return err
		}

		applied := after - before
		audit := &models.AuditLog{
			Action:       models.AuditAdminAdjustment,
			ActorID:      req.AdminID,
			TargetID:     req.TargetUserID,
			PointsBefore: &before,
			PointsAfter:  &after,
			Delta:        &applied,
			Reason:       reason,
			Metadata:     jsonMap(mergeMeta(req.Metadata, map[string]interface{}{"transaction_id": entry.ID.String(), "requested_delta": req.Delta})),
			CreatedAt:    s.clock.Now(),
		}
		if err := tx.CreateAudit(audit); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}

		res = &AdjustResult{
			Success:       true,
			TransactionID: entry.ID,
			PointsBefore:  before,
			PointsAfter:   after,
			AppliedDelta:  applied,
			NewTier:       p.Tier,
			TierChanged:   change.Changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, entry, change)
	s.logger.Info("points adjusted by admin",
		"admin_id", req.AdminID, "user_id", req.TargetUserID, "requested", req.Delta, "applied", res.AppliedDelta)
	return res, nil
}

type ElevateResult struct {
	Success      bool   `json:"success"`
	UserID       string `json:"user_id"`
	AlreadyAdmin bool   `json:"already_admin"`
}

// ElevateUserToAdmin grants the admin role through the identity provider.
func (s *Service) ElevateUserToAdmin(ctx context.Context, requesterID string, requesterIsAdmin bool, targetUID string) (*ElevateResult, error) {
	if !requesterIsAdmin {
		return nil, newError(KindPermissionDenied, "admin access required")
	}
	if targetUID == "" {
		return nil, newError(KindInvalidArgument, "uid is required")
	}

	target, err := s.requireUser(ctx, targetUID, "user")
	if err != nil {
		return nil, err
	}
	if target.IsAdmin {
		return &ElevateResult{Success: true, UserID: targetUID, AlreadyAdmin: true}, nil
	}

	if err := s.users.SetAdmin(ctx, targetUID); err != nil {
		return nil, fmt.Errorf("set admin claim: %w", err)
	}

	err = s.runInTx(ctx, func(tx store.Tx) error {
		return tx.CreateAudit(&models.AuditLog{
			Action:    models.AuditElevateAdmin,
			ActorID:   requesterID,
			TargetID:  targetUID,
			Reason:    "elevated to admin",
			CreatedAt: s.clock.Now(),
		})
	})
	if err != nil {
		s.logger.Error("failed to audit admin elevation", "actor_id", requesterID, "target_id", targetUID, "error", err)
	}

	s.logger.Info("user elevated to admin", "actor_id", requesterID, "target_id", targetUID)
	return &ElevateResult{Success: true, UserID: targetUID}, nil
}
