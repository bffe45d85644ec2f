package rewards

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"context"

	"rewards-backend/database"
	"rewards-backend/identity"
	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/store"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceRandom replays values in order, repeating the last one.
type sequenceRandom struct {
	mu     sync.Mutex
	values []float64
}

func (r *sequenceRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	if len(r.values) > 1 {
		r.values = r.values[1:]
	}
	return v
}

type capturingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (c *capturingNotifier) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func (c *capturingNotifier) kinds() []notify.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []notify.Kind
	for _, n := range c.got {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	clock    *fakeClock
	random   *sequenceRandom
	notifier *capturingNotifier
}

func freshDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
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
	return db
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       freshDB(t),
		clock:    &fakeClock{now: testNow},
		random:   &sequenceRandom{},
		notifier: &capturingNotifier{},
	}
	base := []Option{WithClock(env.clock), WithRandom(env.random), WithNotifier(env.notifier)}
	env.svc = NewService(store.NewGormStore(env.db), &identity.DBGateway{DB: env.db}, append(base, opts...)...)
	return env
}

func (e *testEnv) seedUser(t *testing.T, id, role string) {
	t.Helper()
	u := models.User{ID: id, Email: id + "@test.com", Name: "User " + id, Role: role}
	if err := e.db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
}

// seedProfile stores a profile whose balance is backed by a matching ledger entry.
func (e *testEnv) seedProfile(t *testing.T, userID string, points, lifetime int) {
	t.Helper()
	p := models.LoyaltyProfile{
		UserID:         userID,
		Points:         points,
		LifetimePoints: lifetime,
		Tier:           TierFor(lifetime),
		CreatedAt:      e.clock.Now().Add(-90 * 24 * time.Hour),
		UpdatedAt:      e.clock.Now().Add(-90 * 24 * time.Hour),
	}
	if err := e.db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
	if points != 0 {
		entry := models.PointsTransaction{
			UserID:      userID,
			Delta:       points,
			Type:        models.TransactionAdminAdjustment,
			Description: "opening balance",
			CreatedAt:   p.CreatedAt,
		}
		if err := e.db.Create(&entry).Error; err != nil {
			t.Fatal(err)
		}
	}
}

func (e *testEnv) seedReward(t *testing.T, id string, cost int, cogs string, tiers string) {
	t.Helper()
	r := models.RewardCatalog{
		ID:               id,
		Name:             "Reward " + id,
		PointsCost:       cost,
		MaxCogsValue:     decimal.RequireFromString(cogs),
		TierRestrictions: tiers,
		IsActive:         true,
	}
	if err := e.db.Create(&r).Error; err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) profile(t *testing.T, userID string) models.LoyaltyProfile {
	t.Helper()
	var p models.LoyaltyProfile
	if err := e.db.First(&p, "user_id = ?", userID).Error; err != nil {
		t.Fatal(err)
	}
	return p
}

func (e *testEnv) assertLedgerConsistent(t *testing.T, userID string) {
	t.Helper()
	check, err := e.svc.VerifyLedger(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if !check.Consistent {
		t.Errorf("ledger sum %d does not match balance %d for %s", check.LedgerSum, check.Balance, userID)
	}
	if check.Balance < 0 {
		t.Errorf("negative balance %d for %s", check.Balance, userID)
	}
}

func (e *testEnv) countEntries(t *testing.T, userID string, typ models.TransactionType) int64 {
	t.Helper()
	var n int64
	e.db.Model(&models.PointsTransaction{}).Where("user_id = ? AND type = ?", userID, typ).Count(&n)
	return n
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
