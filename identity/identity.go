// Package identity resolves and mutates accounts held by the identity provider.
package identity

import (
	"context"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	UID         string
	Email       string
	DisplayName string
	IsAdmin     bool
	Disabled    bool
}

type Gateway interface {
	GetUser(ctx context.Context, uid string) (*User, error)
	SetAdmin(ctx context.Context, uid string) error
}

// WithTimeout bounds every call made through g.
func WithTimeout(g Gateway, timeout time.Duration) Gateway {
	if timeout <= 0 {
		return g
	}
	return &boundedGateway{next: g, timeout: timeout}
}

type boundedGateway struct {
	next    Gateway
	timeout time.Duration
}

func (b *boundedGateway) GetUser(ctx context.Context, uid string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.GetUser(ctx, uid)
}

func (b *boundedGateway) SetAdmin(ctx context.Context, uid string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.SetAdmin(ctx, uid)
}
