package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"rewards-backend/database"
	"rewards-backend/identity"
	"rewards-backend/metrics"
	"rewards-backend/middleware"
	"rewards-backend/models"
	"rewards-backend/rewards"
	"rewards-backend/store"
	"rewards-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-for-routes")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:routes_%s?mode=memory&cache=shared", name))
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

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	svc := rewards.NewService(store.NewGormStore(db), &identity.DBGateway{DB: db}, rewards.WithMetrics(collector))

	limiter := middleware.NewMemoryLimiter(time.Minute)
	t.Cleanup(limiter.Close)

	r := gin.New()
	SetupRoutes(r, Deps{
		DB:                   db,
		Service:              svc,
		Limiter:              limiter,
		Metrics:              collector,
		Gatherer:             reg,
		PaymentWebhookSecret: "whsec",
		SignatureTolerance:   5 * time.Minute,
	})
	return r, db
}

func userToken(t *testing.T, db *gorm.DB, id, role string) string {
	t.Helper()
	if err := db.Create(&models.User{ID: id, Email: id + "@test.com", Role: role}).Error; err != nil {
		t.Fatal(err)
	}
	token, err := utils.GenerateToken(id, id+"@test.com", role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func authed(method, url string, body interface{}, token string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthCheck(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/rewards/profile", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminRouteBlocksNonAdmin(t *testing.T) {
	r, db := setupRouter(t)
	token := userToken(t, db, "u1", models.RoleCustomer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed("GET", "/api/admin/rewards/analytics", nil, token))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookIsPublicButSigned(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/payment", strings.NewReader(`{}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook should be rejected, got %d", w.Code)
	}
}

func TestRedeemIsRateLimited(t *testing.T) {
	r, db := setupRouter(t)
	token := userToken(t, db, "u1", models.RoleCustomer)

	body := map[string]interface{}{"points": 100, "rewardId": "missing"}
	for i := 0; i < redeemLimit; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authed("POST", "/api/rewards/redeem", body, token))
		if w.Code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed("POST", "/api/rewards/redeem", body, token))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d redemptions, got %d", redeemLimit, w.Code)
	}

	// Budgets are per caller.
	other := userToken(t, db, "u2", models.RoleCustomer)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed("POST", "/api/rewards/redeem", body, other))
	if w.Code != http.StatusNotFound {
		t.Fatalf("another caller should not be limited, got %d", w.Code)
	}
}

func TestProfileWritesAreRateLimited(t *testing.T) {
	r, db := setupRouter(t)
	token := userToken(t, db, "u1", models.RoleCustomer)

	for i := 0; i < codeLimit; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authed("GET", "/api/rewards/referral-code", nil, token))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed("GET", "/api/rewards/referral-code", nil, token))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d code lookups, got %d", codeLimit, w.Code)
	}

	body := map[string]interface{}{"birthday": "03-14"}
	for i := 0; i < birthdayLimit; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, authed("PUT", "/api/rewards/birthday", body, token))
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i+1)
		}
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authed("PUT", "/api/rewards/birthday", body, token))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d birthday updates, got %d", birthdayLimit, w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, db := setupRouter(t)
	token := userToken(t, db, "u1", models.RoleCustomer)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authed("POST", "/api/rewards/earn", map[string]interface{}{"points": 40}, token))
	if w.Code != http.StatusOK {
		t.Fatalf("earn failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	out := w.Body.String()
	for _, want := range []string{"rewards_ledger_entries_total", "rewards_points_issued_total 40"} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
