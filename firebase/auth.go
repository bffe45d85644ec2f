package firebase

import (
	"context"
	"fmt"

	"rewards-backend/identity"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// adminClaim is the custom claim that marks store staff.
const adminClaim = "admin"

type authClient interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error
}

// AuthGateway resolves members through Firebase Authentication.
type AuthGateway struct {
	client     authClient
	isNotFound func(error) bool
}

func NewAuthGateway(ctx context.Context, app *firebase.App) (*AuthGateway, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &AuthGateway{client: client, isNotFound: auth.IsUserNotFound}, nil
}

func (g *AuthGateway) record(ctx context.Context, uid string) (*auth.UserRecord, error) {
	rec, err := g.client.GetUser(ctx, uid)
	if err != nil {
		if g.isNotFound(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("get firebase user %s: %w", uid, err)
	}
	return rec, nil
}

func (g *AuthGateway) GetUser(ctx context.Context, uid string) (*identity.User, error) {
	rec, err := g.record(ctx, uid)
	if err != nil {
		return nil, err
	}

	u := &identity.User{UID: uid, Disabled: rec.Disabled}
	if rec.UserInfo != nil {
		u.Email = rec.UserInfo.Email
		u.DisplayName = rec.UserInfo.DisplayName
	}
	if v, ok := rec.CustomClaims[adminClaim].(bool); ok {
		u.IsAdmin = v
	}
	return u, nil
}

// SetAdmin adds the admin claim while keeping the user's other custom claims.
func (g *AuthGateway) SetAdmin(ctx context.Context, uid string) error {
	rec, err := g.record(ctx, uid)
	if err != nil {
		return err
	}

	claims := make(map[string]interface{}, len(rec.CustomClaims)+1)
	for k, v := range rec.CustomClaims {
		claims[k] = v
	}
	claims[adminClaim] = true

	if err := g.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		if g.isNotFound(err) {
			return identity.ErrUserNotFound
		}
		return fmt.Errorf("set custom claims for %s: %w", uid, err)
	}
	return nil
}

var _ identity.Gateway = (*AuthGateway)(nil)
