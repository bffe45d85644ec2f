package handlers

import (
	"net/http"
	"testing"

	"rewards-backend/dtos"
	"rewards-backend/models"
	"rewards-backend/rewards"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func setupCronRouter(t *testing.T, svc *rewards.Service, secret string) *gin.Engine {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	h := &CronHandler{Service: svc, SecretHash: string(hash)}
	r.POST("/api/internal/cron/birthday", h.Birthday)
	return r
}

func TestCronBirthdayRequiresSecret(t *testing.T) {
	r := setupCronRouter(t, newTestService(freshDB(t)), "cron-secret")

	expectError(t, serve(r, jsonRequest("POST", "/api/internal/cron/birthday", nil)), http.StatusUnauthorized, rewards.KindUnauthenticated)

	req := jsonRequest("POST", "/api/internal/cron/birthday", nil)
	req.Header.Set(CronSecretHeader, "guess")
	expectError(t, serve(r, req), http.StatusUnauthorized, rewards.KindUnauthenticated)
}

func TestCronBirthdayRuns(t *testing.T) {
	db := freshDB(t)
	r := setupCronRouter(t, newTestService(db), "cron-secret")

	req := jsonRequest("POST", "/api/internal/cron/birthday", nil)
	req.Header.Set(CronSecretHeader, "cron-secret")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := parseResponse(w)
	if body["job"] != models.JobBirthdayBonus || body["status"] != dtos.JobStatusCompleted {
		t.Errorf("unexpected run: %v", body)
	}

	var runs int64
	db.Model(&models.JobRun{}).Count(&runs)
	if runs != 1 {
		t.Errorf("expected one persisted run, got %d", runs)
	}
}

func TestCronWithoutConfiguredHash(t *testing.T) {
	r := gin.New()
	h := &CronHandler{Service: newTestService(freshDB(t))}
	r.POST("/cron", h.Birthday)

	req := jsonRequest("POST", "/cron", nil)
	req.Header.Set(CronSecretHeader, "anything")
	expectError(t, serve(r, req), http.StatusUnauthorized, rewards.KindUnauthenticated)
}
