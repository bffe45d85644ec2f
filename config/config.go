package config

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func LoadEnv() error {
	// A missing .env is normal in production where variables are set directly.
	if err := godotenv.Load(); err != nil {
		return nil
	}
	return nil
}

// ValidateEnv checks that critical environment variables are set.
// Returns an error if any critical variable is missing.
func ValidateEnv() error {
	var missing []string

	if os.Getenv("JWT_SECRET") == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if os.Getenv("DATABASE_URL") == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("critical environment variables not set: %v", missing)
	}

	optional := []struct {
		key    string
		effect string
	}{
		{"PAYMENT_WEBHOOK_SECRET", "payment webhooks will be rejected"},
		{"CRON_SECRET_HASH", "the cron trigger endpoint will be rejected"},
		{"FIREBASE_STORAGE_BUCKET", "analytics export will be unavailable"},
		{"FRONTEND_URL", "CORS may not work correctly"},
		{"SMTP_HOST", "email notifications will not work"},
		{"SMTP_FROM", "email notifications will not work"},
	}
	for _, o := range optional {
		if os.Getenv(o.key) == "" {
			slog.Warn("optional environment variable not set", "key", o.key, "effect", o.effect)
		}
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, raw)
	}
	return v, nil
}

const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendFirebase = "firebase"
)

// Config is the typed process configuration.
type Config struct {
	Port        string
	LogLevel    string
	CORSOrigins []string

	DatabaseURL  string
	DBIsolation  sql.IsolationLevel
	DBMaxRetries int
	CatalogPath  string

	RateLimitBackend string

	IdentityBackend     string
	IdentityTimeout     time.Duration
	FirebaseCredentials string
	StorageBucket       string

	NotifyWebhookURL string
	NotifyTimeout    time.Duration
	NotifyRatePerSec float64
	NotifyBurst      int

	PaymentWebhookSecret string
	SignatureTolerance   time.Duration
	CronSecretHash       string
	BirthdayCronHour     int
	Location             *time.Location

	// Zero means keep the built-in default.
	MaxGivebackPercent float64
	DailySpinCogsCap   float64

	AdminEmail string
	AdminUID   string
}

func parseIsolation(s string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, fmt.Errorf("DB_ISOLATION: unknown level %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads the configuration from the environment. Every invalid value is reported.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Port:                 GetEnv("PORT", "8080"),
		LogLevel:             GetEnv("LOG_LEVEL", "info"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		CatalogPath:          GetEnv("REWARDS_CATALOG_FILE", "rewards_catalog.yaml"),
		RateLimitBackend:     strings.ToLower(GetEnv("RATE_LIMIT_BACKEND", BackendMemory)),
		IdentityBackend:      strings.ToLower(GetEnv("IDENTITY_BACKEND", BackendDatabase)),
		FirebaseCredentials:  os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		StorageBucket:        os.Getenv("FIREBASE_STORAGE_BUCKET"),
		NotifyWebhookURL:     os.Getenv("NOTIFY_WEBHOOK_URL"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CronSecretHash:       os.Getenv("CRON_SECRET_HASH"),
		AdminEmail:           os.Getenv("ADMIN_EMAIL"),
		AdminUID:             os.Getenv("ADMIN_UID"),
	}

	cfg.CORSOrigins = splitList(GetEnv("CORS_ORIGINS", ""))
	for _, key := range []string{"FRONTEND_URL", "ADMIN_URL"} {
		if v := os.Getenv(key); v != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, v)
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	var err error
	cfg.DBIsolation, err = parseIsolation(GetEnv("DB_ISOLATION", "serializable"))
	collect(err)
	cfg.DBMaxRetries, err = getEnvInt("DB_MAX_RETRIES", 3)
	collect(err)
	cfg.IdentityTimeout, err = getEnvDuration("IDENTITY_TIMEOUT", 5*time.Second)
	collect(err)
	cfg.NotifyTimeout, err = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.NotifyRatePerSec, err = getEnvFloat("NOTIFY_RATE_PER_SEC", 5)
	collect(err)
	cfg.NotifyBurst, err = getEnvInt("NOTIFY_BURST", 10)
	collect(err)
	cfg.SignatureTolerance, err = getEnvDuration("PAYMENT_SIGNATURE_TOLERANCE", 5*time.Minute)
	collect(err)
	cfg.BirthdayCronHour, err = getEnvInt("BIRTHDAY_CRON_HOUR", 0)
	collect(err)
	cfg.MaxGivebackPercent, err = getEnvFloat("REWARDS_MAX_GIVEBACK_PERCENT", 0)
	collect(err)
	cfg.DailySpinCogsCap, err = getEnvFloat("REWARDS_DAILY_SPIN_COGS_CAP", 0)
	collect(err)

	cfg.Location, err = time.LoadLocation(GetEnv("REWARDS_TIMEZONE", "UTC"))
	if err != nil {
		collect(fmt.Errorf("REWARDS_TIMEZONE: %w", err))
	}

	if cfg.RateLimitBackend != BackendMemory && cfg.RateLimitBackend != BackendDatabase {
		collect(fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q", BackendMemory, BackendDatabase))
	}
	if cfg.IdentityBackend != BackendDatabase && cfg.IdentityBackend != BackendFirebase {
		collect(fmt.Errorf("IDENTITY_BACKEND must be %q or %q", BackendDatabase, BackendFirebase))
	}
	if cfg.BirthdayCronHour < 0 || cfg.BirthdayCronHour > 23 {
		collect(fmt.Errorf("BIRTHDAY_CRON_HOUR must be between 0 and 23"))
	}
	if cfg.MaxGivebackPercent < 0 || cfg.DailySpinCogsCap < 0 {
		collect(fmt.Errorf("policy overrides must not be negative"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}
