package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rewards-backend/config"
	"rewards-backend/database"
	"rewards-backend/firebase"
	"rewards-backend/identity"
	"rewards-backend/logger"
	"rewards-backend/metrics"
	"rewards-backend/middleware"
	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/rewards"
	"rewards-backend/routes"
	"rewards-backend/store"
	"rewards-backend/utils"
	"rewards-backend/worker"

	firebaseapp "firebase.google.com/go/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// Load environment variables
	if err := config.LoadEnv(); err != nil {
		fatal("error loading .env file", err)
	}

	// Validate critical environment variables
	if err := config.ValidateEnv(); err != nil {
		fatal("environment validation failed", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", err)
	}
	logger.SetupDefault(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		fatal("failed to connect to database", err)
	}

	if err := database.Migrate(db); err != nil {
		fatal("failed to run migrations", err)
	}

	if err := database.SeedRewardCatalogFile(db, cfg.CatalogPath); err != nil {
		fatal("failed to seed reward catalog", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var app *firebaseapp.App
	if cfg.IdentityBackend == config.BackendFirebase || cfg.StorageBucket != "" {
		app, err = firebase.Init(ctx, cfg.FirebaseCredentials, cfg.StorageBucket)
		if err != nil {
			fatal("failed to initialise firebase", err)
		}
	}

	users, err := identityGateway(ctx, cfg, db, app)
	if err != nil {
		fatal("failed to set up identity backend", err)
	}

	if cfg.IdentityBackend == config.BackendDatabase {
		if err := database.EnsureAdmin(db, cfg.AdminUID, cfg.AdminEmail); err != nil {
			slog.Warn("could not create default admin", "error", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	sinks := notify.Sinks(users, notify.SinkConfig{
		EmailEnabled: utils.EmailConfigured(),
		WebhookURL:   cfg.NotifyWebhookURL,
	}, slog.Default())
	dispatcher := notify.NewDispatcher(sinks,
		notify.WithRate(cfg.NotifyRatePerSec, cfg.NotifyBurst),
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithLogger(slog.Default()),
	)

	st := store.NewGormStore(db, store.WithIsolation(cfg.DBIsolation), store.WithMaxRetries(cfg.DBMaxRetries))
	svc := rewards.NewService(st, users,
		rewards.WithPolicy(policyFromConfig(cfg)),
		rewards.WithNotifier(dispatcher),
		rewards.WithMetrics(collector),
		rewards.WithLogger(slog.Default()),
	)

	limiter, closeLimiter := rateLimiter(cfg, db)
	defer closeLimiter()

	deps := routes.Deps{
		DB:                   db,
		Service:              svc,
		Limiter:              limiter,
		Metrics:              collector,
		Gatherer:             registry,
		PaymentWebhookSecret: cfg.PaymentWebhookSecret,
		SignatureTolerance:   cfg.SignatureTolerance,
		CronSecretHash:       cfg.CronSecretHash,
	}
	if app != nil && cfg.StorageBucket != "" {
		reports, err := firebase.NewBucketReports(ctx, app, cfg.StorageBucket)
		if err != nil {
			slog.Warn("report exports disabled", "error", err)
		} else {
			deps.Reports = reports
		}
	}

	birthdays := &worker.Daily{
		Name:     models.JobBirthdayBonus,
		Hour:     cfg.BirthdayCronHour,
		Location: cfg.Location,
		Job: func(ctx context.Context) error {
			_, err := svc.RunBirthdayBonuses(ctx)
			return err
		},
	}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		birthdays.Run(ctx)
	}()

	// Setup Gin router
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	routes.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in a goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Port, "identity_backend", cfg.IdentityBackend, "rate_limit_backend", cfg.RateLimitBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("failed to start server", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	<-workerDone
	dispatcher.Wait()

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		} else {
			slog.Info("database connection closed")
		}
	}

	slog.Info("server exited gracefully")
}

func identityGateway(ctx context.Context, cfg *config.Config, db *gorm.DB, app *firebaseapp.App) (identity.Gateway, error) {
	var gw identity.Gateway = &identity.DBGateway{DB: db}
	if cfg.IdentityBackend == config.BackendFirebase {
		authGateway, err := firebase.NewAuthGateway(ctx, app)
		if err != nil {
			return nil, err
		}
		gw = authGateway
	}
	return identity.WithTimeout(gw, cfg.IdentityTimeout), nil
}

func rateLimiter(cfg *config.Config, db *gorm.DB) (middleware.Limiter, func()) {
	if cfg.RateLimitBackend == config.BackendDatabase {
		return middleware.NewStoreLimiter(db), func() {}
	}
	limiter := middleware.NewMemoryLimiter(5 * time.Minute)
	return limiter, limiter.Close
}

func policyFromConfig(cfg *config.Config) rewards.Policy {
	policy := rewards.DefaultPolicy()
	if cfg.Location != nil {
		policy.Location = cfg.Location
	}
	if cfg.MaxGivebackPercent > 0 {
		policy.MaxGivebackPercent = decimal.NewFromFloat(cfg.MaxGivebackPercent)
	}
	if cfg.DailySpinCogsCap > 0 {
		policy.DailySpinCogsCap = decimal.NewFromFloat(cfg.DailySpinCogsCap)
	}
	return policy
}
