// Package rewards implements the loyalty points engines: earning, redemption, spins,
// referrals, birthday bonuses and administrative adjustments. Every balance mutation
// runs inside a single store transaction together with its ledger entries.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rewards-backend/identity"
	"rewards-backend/metrics"
	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/store"

	"gorm.io/datatypes"
)

type Service struct {
	store    store.Store
	users    identity.Gateway
	notifier notify.Notifier
	metrics  metrics.Recorder
	policy   Policy
	clock    Clock
	random   RandomSource
	logger   *slog.Logger
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithRandom(r RandomSource) Option {
	return func(s *Service) { s.random = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(st store.Store, users identity.Gateway, opts ...Option) *Service {
	s := &Service{
		store:    st,
		users:    users,
		notifier: notify.Nop{},
		metrics:  metrics.Nop{},
		policy:   DefaultPolicy(),
		clock:    systemClock{},
		random:   globalRandom{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

// runInTx wraps store.RunInTx and maps persistence failures onto domain errors.
func (s *Service) runInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.store.RunInTx(ctx, fn)
	if err == nil {
		return nil
	}
	var domain *Error
	switch {
	case errors.As(err, &domain):
		return domain
	case errors.Is(err, store.ErrConflict):
		return newError(KindAborted, "the request conflicted with a concurrent update, please retry")
	}
	return err
}

// requireUser checks the account exists with the identity provider.
func (s *Service) requireUser(ctx context.Context, uid, label string) (*identity.User, error) {
	u, err := s.users.GetUser(ctx, uid)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, newError(KindNotFound, "%s not found", label)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", label, err)
	}
	return u, nil
}

// lockProfile loads the profile under a row lock, creating a bronze profile with zero
// balances when none exists.
func (s *Service) lockProfile(tx store.Tx, userID string) (*models.LoyaltyProfile, bool, error) {
	p, err := tx.GetProfile(userID, true)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := s.clock.Now()
	p = &models.LoyaltyProfile{
		UserID:    userID,
		Tier:      models.TierBronze,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateProfile(p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// GetOrCreateProfile returns the member's profile, creating it on first access.
func (s *Service) GetOrCreateProfile(ctx context.Context, userID string) (*models.LoyaltyProfile, bool, error) {
	if userID == "" {
		return nil, false, newError(KindInvalidArgument, "user id is required")
	}
	var profile *models.LoyaltyProfile
	var created bool
	err := s.runInTx(ctx, func(tx store.Tx) error {
		var err error
		profile, created, err = s.lockProfile(tx, userID)
		return err
	})
	return profile, created, err
}

// mutation describes one balance change and its ledger entry.
type mutation struct {
	delta    int
	lifetime int
	entry    models.PointsTransaction
}

type tierChange struct {
	From    models.Tier
	To      models.Tier
	Changed bool
}

func (c tierChange) upgraded() bool {
	return c.Changed && c.To.Rank() > c.From.Rank()
}

// apply credits or debits the locked profile, appends the ledger entry and, when the
// lifetime total crosses a threshold, a zero-delta tier_change entry. The profile is
// saved before returning.
func (s *Service) apply(tx store.Tx, p *models.LoyaltyProfile, m mutation) (*models.PointsTransaction, tierChange, error) {
	if p.Points+m.delta < 0 {
		return nil, tierChange{}, fmt.Errorf("balance of %s would become negative", p.UserID)
	}
	now := s.clock.Now()

	p.Points += m.delta
	p.LifetimePoints += m.lifetime
	p.UpdatedAt = now

	entry := m.entry
	entry.UserID = p.UserID
	entry.Delta = m.delta
	entry.CreatedAt = now
	if err := tx.AppendTransaction(&entry); err != nil {
		return nil, tierChange{}, fmt.Errorf("append %s entry: %w", entry.Type, err)
	}

	change := tierChange{From: p.Tier, To: TierFor(p.LifetimePoints)}
	if change.To != change.From {
		change.Changed = true
		verb := "changed"
		if change.upgraded() {
			verb = "upgraded"
		}
		note := models.PointsTransaction{
			UserID:      p.UserID,
			Type:        models.TransactionTierChange,
			Description: fmt.Sprintf("Tier %s from %s to %s", verb, change.From, change.To),
			Metadata:    datatypes.JSONMap{"from": string(change.From), "to": string(change.To)},
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(&note); err != nil {
			return nil, tierChange{}, fmt.Errorf("append tier change entry: %w", err)
		}
		p.Tier = change.To
	}

	if err := tx.SaveProfile(p); err != nil {
		return nil, tierChange{}, fmt.Errorf("save profile: %w", err)
	}
	return &entry, change, nil
}

// committed reports a finished mutation to metrics and, for upgrades, to the member.
func (s *Service) committed(ctx context.Context, entry *models.PointsTransaction, change tierChange) {
	if entry == nil {
		return
	}
	s.metrics.RecordLedgerEntry(string(entry.Type), entry.Delta)
	if change.Changed {
		s.metrics.RecordLedgerEntry(string(models.TransactionTierChange), 0)
	}
	if change.upgraded() {
		s.notify(ctx, notify.Notification{
			Kind:    notify.KindTierUpgraded,
			UserID:  entry.UserID,
			Title:   "You reached " + string(change.To),
			Message: fmt.Sprintf("Your tier was upgraded from %s to %s.", change.From, change.To),
			Data:    map[string]interface{}{"from": change.From, "to": change.To},
		})
	}
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
	}
}

func jsonMap(m map[string]interface{}) datatypes.JSONMap {
	if len(m) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
