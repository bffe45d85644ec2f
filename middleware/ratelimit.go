package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"rewards-backend/metrics"
	"rewards-backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Limiter counts requests per key in fixed windows. Allow reports whether the request
// fits in the key's budget of maxRequests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error)
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory, so every instance enforces its own budget.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryLimiter starts a limiter that sweeps expired windows every sweepEvery.
func NewMemoryLimiter(sweepEvery time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	go l.cleanup(sweepEvery)
	return l
}

func (l *MemoryLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, key)
		}
	}
}

// Close stops the sweeper.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		l.entries[key] = &windowEntry{count: 1, resetAt: now.Add(window)}
		return true, nil
	}
	if entry.count >= maxRequests {
		return false, nil
	}
	entry.count++
	return true, nil
}

// StoreLimiter keeps counters in the rate_limit_buckets table so every instance shares
// one budget per key.
type StoreLimiter struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStoreLimiter(db *gorm.DB) *StoreLimiter {
	return &StoreLimiter{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (l *StoreLimiter) Allow(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	allowed, err := l.allow(ctx, key, maxRequests, window)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another instance created the bucket first; the second pass sees its row.
		allowed, err = l.allow(ctx, key, maxRequests, window)
	}
	return allowed, err
}

func (l *StoreLimiter) allow(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error) {
	allowed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		var bucket models.RateLimitBucket
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("bucket_key = ?", key).
			First(&bucket).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			allowed = true
			return tx.Create(&models.RateLimitBucket{Key: key, Count: 1, ResetAt: now.Add(window)}).Error
		}
		if err != nil {
			return err
		}

		if !now.Before(bucket.ResetAt) {
			allowed = true
			return tx.Model(&models.RateLimitBucket{}).Where("bucket_key = ?", key).
				Updates(map[string]interface{}{"count": 1, "reset_at": now.Add(window)}).Error
		}
		if bucket.Count >= maxRequests {
			allowed = false
			return nil
		}
		allowed = true
		return tx.Model(&models.RateLimitBucket{}).Where("bucket_key = ?", key).
			Update("count", gorm.Expr("count + 1")).Error
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// RateLimit budgets an operation per authenticated caller, falling back to the client IP.
// Limiter failures let the request through.
func RateLimit(limiter Limiter, op string, maxRequests int, window time.Duration, recorder metrics.Recorder) gin.HandlerFunc {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return func(c *gin.Context) {
		subject := UserID(c)
		if subject == "" {
			subject = c.ClientIP()
		}

		allowed, err := limiter.Allow(c.Request.Context(), op+":"+subject, maxRequests, window)
		if err != nil {
			slog.Error("rate limiter unavailable", "op", op, "error", err)
			c.Next()
			return
		}
		if !allowed {
			recorder.RecordRateLimited(op)
			abortWithError(c, http.StatusTooManyRequests, "resource_exhausted", "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}
