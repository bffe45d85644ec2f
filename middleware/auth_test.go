package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"rewards-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-key-for-unit-tests")
}

func setupTestRouter() *gin.Engine {
	r := gin.New()

	protected := r.Group("/api")
	protected.Use(AuthMiddleware())
	protected.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": UserID(c),
			"role":    c.GetString(ContextUserRole),
			"email":   c.GetString(ContextUserEmail),
		})
	})

	admin := r.Group("/api/admin")
	admin.Use(AuthMiddleware())
	admin.Use(AdminMiddleware())
	admin.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "admin access granted"})
	})

	return r
}

func doGet(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	router.ServeHTTP(w, req)
	return w
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return body.Error.Kind
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	router := setupTestRouter()

	token, err := utils.GenerateToken("firebase-uid-1", "test@test.com", "customer", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	w := doGet(router, "/api/test", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["user_id"] != "firebase-uid-1" || body["role"] != "customer" || body["email"] != "test@test.com" {
		t.Errorf("unexpected context values %v", body)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	router := setupTestRouter()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, utils.Claims{
		UserID: "u1",
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	})
	expiredToken, _ := expired.SignedString([]byte(os.Getenv("JWT_SECRET")))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed token", "Bearer not-a-valid-token"},
		{"expired token", "Bearer " + expiredToken},
		{"no bearer prefix", "Token abc"},
		{"extra parts", "Bearer a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGet(router, "/api/test", tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
			}
			if kind := errorKind(t, w); kind != "unauthenticated" {
				t.Errorf("expected unauthenticated, got %s", kind)
			}
		})
	}
}

func TestAdminMiddlewareAllowsAdmin(t *testing.T) {
	router := setupTestRouter()
	token, _ := utils.GenerateToken("admin-1", "admin@test.com", "admin", time.Hour)

	w := doGet(router, "/api/admin/test", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminMiddlewareBlocksCustomer(t *testing.T) {
	router := setupTestRouter()
	token, _ := utils.GenerateToken("u1", "customer@test.com", "customer", time.Hour)

	w := doGet(router, "/api/admin/test", "Bearer "+token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
	if kind := errorKind(t, w); kind != "permission_denied" {
		t.Errorf("expected permission_denied, got %s", kind)
	}
}
