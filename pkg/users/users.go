// Package users stores registered identities for the auth service.
package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bytebites/bytebites-core/pkg/auth"
)

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Roles        auth.RoleSet
	CreatedAt    time.Time
}

// Identity returns the user's identity.
func (u *User) Identity() auth.Identity {
	return auth.Identity{Subject: u.Email, Roles: u.Roles}
}

// Store persists users. Emails are unique; Create fails with CONF_002 on a
// duplicate and FindByEmail fails with NF_002 when no user matches.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
