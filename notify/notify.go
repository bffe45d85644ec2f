// Package notify delivers best-effort messages about ledger events to members.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Kind string

const (
	KindPointsEarned   Kind = "points_earned"
	KindRewardRedeemed Kind = "reward_redeemed"
	KindBirthdayBonus  Kind = "birthday_bonus"
	KindReferralBonus  Kind = "referral_bonus"
	KindTierUpgraded   Kind = "tier_upgraded"
	KindSpinWin        Kind = "spin_win"
)

type Notification struct {
	Kind    Kind                   `json:"kind"`
	UserID  string                 `json:"user_id"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	SentAt  time.Time              `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Dispatcher fans notifications out to its sinks in the background. Notify never
// blocks on delivery and never reports sink failures to the caller.
type Dispatcher struct {
	sinks   []Notifier
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithRate throttles outbound deliveries to perSecond with the given burst.
func WithRate(perSecond float64, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(sinks []Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		timeout: 10 * time.Second,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	if len(d.sinks) == 0 {
		return nil
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Delivery outlives the request that triggered it.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		for _, sink := range d.sinks {
			if err := d.limiter.Wait(ctx); err != nil {
				d.logger.Warn("notification dropped", "kind", n.Kind, "user_id", n.UserID, "error", err)
				return
			}
			if err := sink.Notify(ctx, n); err != nil {
				d.logger.Warn("notification delivery failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
			}
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
