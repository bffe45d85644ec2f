package routes

import (
	"net/http"
	"time"

	"rewards-backend/firebase"
	"rewards-backend/handlers"
	"rewards-backend/metrics"
	"rewards-backend/middleware"
	"rewards-backend/rewards"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Deps carries everything the router needs. Nil Metrics and Limiter fall back to a no-op
// recorder and an in-process limiter. /metrics is only mounted when Gatherer is set.
type Deps struct {
	DB       *gorm.DB
	Service  *rewards.Service
	Limiter  middleware.Limiter
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
	Reports  firebase.ReportStorage

	PaymentWebhookSecret string
	SignatureTolerance   time.Duration
	CronSecretHash       string
}

// Per-caller budgets for the mutating operations.
const (
	earnLimit     = 10
	redeemLimit   = 5
	referralLimit = 5
	couponLimit   = 20
	spinLimit     = 10
	adjustLimit   = 30
	elevateLimit  = 5
	birthdayLimit = 5
	codeLimit     = 20
)

func SetupRoutes(r *gin.Engine, deps Deps) {
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewMemoryLimiter(time.Minute)
	}
	limit := func(op string, n int, window time.Duration) gin.HandlerFunc {
		return middleware.RateLimit(limiter, op, n, window, recorder)
	}

	rewardsHandler := &handlers.RewardsHandler{Service: deps.Service}
	adminHandler := &handlers.AdminHandler{Service: deps.Service, Reports: deps.Reports}
	webhookHandler := &handlers.WebhookHandler{
		Service:   deps.Service,
		Secret:    deps.PaymentWebhookSecret,
		Tolerance: deps.SignatureTolerance,
	}
	cronHandler := &handlers.CronHandler{Service: deps.Service, SecretHash: deps.CronSecretHash}

	r.Use(middleware.Metrics(recorder))

	api := r.Group("/api")

	// Machine-to-machine routes authenticate themselves.
	api.POST("/webhooks/payment", webhookHandler.PaymentSucceeded)
	api.POST("/internal/cron/birthday", cronHandler.Birthday)

	member := api.Group("/rewards")
	member.Use(middleware.AuthMiddleware())
	{
		member.POST("/earn", limit("earn", earnLimit, time.Minute), rewardsHandler.Earn)
		member.POST("/redeem", limit("redeem", redeemLimit, time.Hour), rewardsHandler.Redeem)
		member.GET("/coupons/:code", rewardsHandler.ValidateCoupon)
		member.POST("/coupons/:code/use", limit("coupon_use", couponLimit, time.Minute), rewardsHandler.MarkCouponUsed)
		member.POST("/spin", limit("spin", spinLimit, time.Minute), rewardsHandler.Spin)
		member.POST("/referrals", limit("referral", referralLimit, time.Hour), rewardsHandler.Referral)
		member.GET("/referral-code", limit("referral_code", codeLimit, time.Minute), rewardsHandler.ReferralCode)
		member.GET("/profile", rewardsHandler.Profile)
		member.GET("/history", rewardsHandler.History)
		member.GET("/redemptions", rewardsHandler.Redemptions)
		member.PUT("/birthday", limit("birthday", birthdayLimit, time.Hour), rewardsHandler.SetBirthday)
		member.GET("/catalog", rewardsHandler.Catalog)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/rewards/adjust", limit("admin_adjust", adjustLimit, time.Minute), adminHandler.Adjust)
		admin.GET("/rewards/analytics", adminHandler.Analytics)
		admin.POST("/rewards/analytics/export", adminHandler.ExportAnalytics)
		admin.GET("/rewards/ledger/:userId/verify", adminHandler.VerifyLedger)
		admin.POST("/users/:uid/elevate", limit("elevate", elevateLimit, time.Hour), adminHandler.Elevate)
	}

	r.GET("/health", func(c *gin.Context) {
		if deps.DB != nil {
			if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}
}
