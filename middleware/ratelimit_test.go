package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rewards-backend/database"
	"rewards-backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newMemoryLimiter(t *testing.T) (*MemoryLimiter, *fakeNow) {
	clock := &fakeNow{t: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(time.Hour)
	l.now = clock.now
	t.Cleanup(l.Close)
	return l, clock
}

func newStoreLimiter(t *testing.T) (*StoreLimiter, *fakeNow, *gorm.DB) {
	name := strings.ReplaceAll(t.Name(), "/", "_")
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
	clock := &fakeNow{t: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)}
	l := NewStoreLimiter(db)
	l.now = clock.now
	return l, clock, db
}

// exerciseLimiter checks the fixed window semantics shared by every Limiter.
func exerciseLimiter(t *testing.T, l Limiter, clock *fakeNow) {
	ctx := context.Background()
	allow := func(key string) bool {
		t.Helper()
		ok, err := l.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		return ok
	}

	for i := 0; i < 3; i++ {
		if !allow("earn:u1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if allow("earn:u1") {
		t.Fatal("fourth request in the window should be rejected")
	}
	if !allow("earn:u2") {
		t.Fatal("another user has a separate budget")
	}
	if !allow("redeem:u1") {
		t.Fatal("another operation has a separate budget")
	}

	clock.advance(time.Minute)
	if !allow("earn:u1") {
		t.Fatal("budget should reset once the window expires")
	}
}

func TestMemoryLimiterWindow(t *testing.T) {
	l, clock := newMemoryLimiter(t)
	exerciseLimiter(t, l, clock)
}

func TestMemoryLimiterSweep(t *testing.T) {
	l, clock := newMemoryLimiter(t)
	l.Allow(context.Background(), "spin:u1", 1, time.Minute)
	l.Allow(context.Background(), "spin:u2", 1, time.Hour)

	clock.advance(2 * time.Minute)
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries["spin:u1"]; ok {
		t.Error("expired window should be swept")
	}
	if _, ok := l.entries["spin:u2"]; !ok {
		t.Error("live window should survive the sweep")
	}
}

func TestStoreLimiterWindow(t *testing.T) {
	l, clock, db := newStoreLimiter(t)
	exerciseLimiter(t, l, clock)

	var bucket models.RateLimitBucket
	if err := db.First(&bucket, "bucket_key = ?", "earn:u1").Error; err != nil {
		t.Fatal(err)
	}
	if bucket.Count != 1 {
		t.Errorf("expected the reset window to hold one request, got %d", bucket.Count)
	}
}

func TestStoreLimiterConcurrentCallers(t *testing.T) {
	l, _, _ := newStoreLimiter(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(context.Background(), "redeem:u1", 5, time.Hour)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Errorf("expected exactly 5 allowed, got %d", allowed)
	}
}

type countingRecorder struct {
	ops []string
}

func (r *countingRecorder) RecordLedgerEntry(string, int)            {}
func (r *countingRecorder) RecordRedemptionRejected(string)          {}
func (r *countingRecorder) RecordSpin(string, bool)                  {}
func (r *countingRecorder) RecordRateLimited(op string)              { r.ops = append(r.ops, op) }
func (r *countingRecorder) RecordBirthdayRun(string, int, int)       {}
func (r *countingRecorder) RecordRequest(string, int, time.Duration) {}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, fmt.Errorf("database unavailable")
}

func TestRateLimitMiddleware429(t *testing.T) {
	l, _ := newMemoryLimiter(t)
	rec := &countingRecorder{}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserID, c.GetHeader("X-User"))
		c.Next()
	})
	r.POST("/spin", RateLimit(l, "spin", 1, time.Minute, rec), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	send := func(user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/spin", nil)
		req.Header.Set("X-User", user)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("u1"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
	if code := send("u2"); code != http.StatusOK {
		t.Fatalf("other user: expected 200, got %d", code)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "spin" {
		t.Errorf("expected one recorded rejection, got %v", rec.ops)
	}
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	r := gin.New()
	r.GET("/test", RateLimit(failingLimiter{}, "test", 1, time.Minute, nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected the request through, got %d", w.Code)
	}
}

type requestRecorder struct {
	countingRecorder
	routes []string
	codes  []int
}

func (r *requestRecorder) RecordRequest(route string, status int, _ time.Duration) {
	r.routes = append(r.routes, route)
	r.codes = append(r.codes, status)
}

func TestMetricsMiddlewareRecordsRouteTemplate(t *testing.T) {
	rec := &requestRecorder{}
	r := gin.New()
	r.Use(Metrics(rec))
	r.GET("/coupons/:code", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/coupons/RW-ABC", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	if len(rec.routes) != 2 || rec.routes[0] != "/coupons/:code" || rec.routes[1] != "unmatched" {
		t.Fatalf("unexpected routes %v", rec.routes)
	}
	if rec.codes[0] != http.StatusAccepted || rec.codes[1] != http.StatusNotFound {
		t.Errorf("unexpected statuses %v", rec.codes)
	}
}
