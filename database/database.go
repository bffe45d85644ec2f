package database

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"rewards-backend/models"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options returns the gorm configuration shared by every connection. Timestamps are
// always stored in UTC so that range queries compare consistently across drivers.
func Options() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         NewLogger(os.Stdout),
	}
}

// NewLogger reports slow queries and errors to w. Misses are expected on lookups such as
// first-time profiles and unseen order ids, so record-not-found is not logged.
func NewLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Connect opens the database named by dsn. A postgres:// URL or key=value DSN opens
// PostgreSQL; a "file:" or ".db" DSN opens SQLite for local development.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=rewards port=5432 sslmode=disable"
	}

	if isSQLite(dsn) {
		return OpenSQLite(dsn)
	}

	if err := EnsureDatabase(dsn); err != nil {
		return nil, fmt.Errorf("ensure database: %w", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), Options())
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database limited to a single connection.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), Options())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func isSQLite(dsn string) bool {
	return strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db") || dsn == ":memory:"
}

// EnsureDatabase creates the target database when the server has none by that name.
// Only URL style DSNs are inspected.
func EnsureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" || dbName == "postgres" {
		return nil
	}

	parsed.Path = "/postgres"
	sqlDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	slog.Info("creating database", "name", dbName)
	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}

// Migrate creates or updates every table the ledger uses. Safe to run repeatedly.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
			return fmt.Errorf("failed to enable pgcrypto extension: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.LoyaltyProfile{},
		&models.PointsTransaction{},
		&models.RewardCatalog{},
		&models.UserRedemption{},
		&models.SpinHistory{},
		&models.ReferralBonus{},
		&models.AuditLog{},
		&models.JobRun{},
		&models.RateLimitBucket{},
	); err != nil {
		return err
	}

	// An order can be credited at most once, even under concurrent delivery.
	if err := db.Exec(`DROP INDEX IF EXISTS idx_points_transactions_earned_order`).Error; err != nil {
		return fmt.Errorf("failed to drop per-user earned order index: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_points_transactions_earned_order_id
		ON points_transactions (order_id)
		WHERE type = 'earned' AND order_id IS NOT NULL;
	`).Error; err != nil {
		return fmt.Errorf("failed to create earned order index: %w", err)
	}

	return nil
}

// EnsureAdmin makes sure the given account exists in the local user directory with the
// admin role. Used to bootstrap the first administrator for the database identity backend.
func EnsureAdmin(db *gorm.DB, uid, email string) error {
	if email == "" {
		return nil
	}

	var existing models.User
	result := db.Where("email = ?", email).Limit(1).Find(&existing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		if existing.Role == models.RoleAdmin {
			return nil
		}
		return db.Model(&existing).Update("role", models.RoleAdmin).Error
	}

	admin := models.User{
		ID:    uid,
		Email: email,
		Name:  "Admin User",
		Role:  models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	slog.Info("default admin created", "email", email, "user_id", admin.ID)
	return nil
}
