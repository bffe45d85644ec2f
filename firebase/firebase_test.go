package firebase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rewards-backend/identity"

	"firebase.google.com/go/v4/auth"
)

func TestSanitizeFilenameNormal(t *testing.T) {
	result := sanitizeFilename("analytics_30d-report.json")
	if result != "analytics_30d-report.json" {
		t.Errorf("expected 'analytics_30d-report.json', got '%s'", result)
	}
}

func TestSanitizeFilenameSpecialChars(t *testing.T) {
	result := sanitizeFilename("../report (1)@#$.json")
	if strings.ContainsAny(result, " ()@#$/") {
		t.Errorf("special chars not replaced: '%s'", result)
	}
}

func TestSanitizeFilenameTooLong(t *testing.T) {
	result := sanitizeFilename(strings.Repeat("a", 200))
	if len(result) != 100 {
		t.Errorf("expected length 100, got %d", len(result))
	}
}

func TestSanitizeFilenameEmpty(t *testing.T) {
	for _, name := range []string{"", ".", ".."} {
		if got := sanitizeFilename(name); got != "file" {
			t.Errorf("sanitizeFilename(%q) = %q, want 'file'", name, got)
		}
	}
}

func TestReportObjectPath(t *testing.T) {
	b := &BucketReports{
		prefix: "reports",
		now:    func() time.Time { return time.Date(2026, 6, 15, 12, 30, 0, 0, time.UTC) },
	}
	if got := b.objectPath("analytics 30d.json"); got != "reports/20260615T123000Z_analytics_30d.json" {
		t.Errorf("unexpected object path %s", got)
	}
}

func TestClientOptions(t *testing.T) {
	if opts := clientOptions(""); len(opts) != 0 {
		t.Errorf("expected default credentials, got %d options", len(opts))
	}
	if opts := clientOptions(`{"type":"service_account"}`); len(opts) != 1 {
		t.Errorf("expected inline credentials option, got %d", len(opts))
	}
	if opts := clientOptions("/etc/keys/sa.json"); len(opts) != 1 {
		t.Errorf("expected file credentials option, got %d", len(opts))
	}
}

var errMissing = errors.New("user not found")

type fakeAuth struct {
	users map[string]*auth.UserRecord
	set   map[string]map[string]interface{}
}

func (f *fakeAuth) GetUser(_ context.Context, uid string) (*auth.UserRecord, error) {
	rec, ok := f.users[uid]
	if !ok {
		return nil, errMissing
	}
	return rec, nil
}

func (f *fakeAuth) SetCustomUserClaims(_ context.Context, uid string, claims map[string]interface{}) error {
	if f.set == nil {
		f.set = map[string]map[string]interface{}{}
	}
	f.set[uid] = claims
	return nil
}

func newFakeGateway() (*AuthGateway, *fakeAuth) {
	fake := &fakeAuth{users: map[string]*auth.UserRecord{
		"uid-1": {
			UserInfo:     &auth.UserInfo{UID: "uid-1", Email: "member@example.com", DisplayName: "Member"},
			CustomClaims: map[string]interface{}{"tenant": "north"},
		},
		"uid-admin": {
			UserInfo:     &auth.UserInfo{UID: "uid-admin", Email: "staff@example.com"},
			CustomClaims: map[string]interface{}{"admin": true},
		},
		"uid-disabled": {
			UserInfo: &auth.UserInfo{UID: "uid-disabled"},
			Disabled: true,
		},
	}}
	return &AuthGateway{client: fake, isNotFound: func(err error) bool { return errors.Is(err, errMissing) }}, fake
}

func TestAuthGatewayGetUser(t *testing.T) {
	g, _ := newFakeGateway()
	ctx := context.Background()

	u, err := g.GetUser(ctx, "uid-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "member@example.com" || u.DisplayName != "Member" || u.IsAdmin || u.Disabled {
		t.Errorf("unexpected user %+v", u)
	}

	admin, err := g.GetUser(ctx, "uid-admin")
	if err != nil {
		t.Fatal(err)
	}
	if !admin.IsAdmin {
		t.Error("admin claim should mark the user as admin")
	}

	disabled, _ := g.GetUser(ctx, "uid-disabled")
	if !disabled.Disabled {
		t.Error("expected disabled user")
	}

	if _, err := g.GetUser(ctx, "nobody"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthGatewaySetAdminKeepsClaims(t *testing.T) {
	g, fake := newFakeGateway()
	ctx := context.Background()

	if err := g.SetAdmin(ctx, "uid-1"); err != nil {
		t.Fatal(err)
	}
	claims := fake.set["uid-1"]
	if claims["admin"] != true || claims["tenant"] != "north" {
		t.Errorf("unexpected claims %v", claims)
	}
	if _, touched := fake.users["uid-1"].CustomClaims["admin"]; touched {
		t.Error("the stored record's claims must not be mutated")
	}

	if err := g.SetAdmin(ctx, "nobody"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
