package issuer

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/users"
)

// Password length bounds. bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// Registrar creates accounts.
type Registrar struct {
	store users.Store
	cost  int
	now   func() time.Time
}

// NewRegistrar returns a registrar hashing with cost. A nil now uses
// time.Now.
func NewRegistrar(store users.Store, cost int, now func() time.Time) *Registrar {
	if now == nil {
		now = time.Now
	}
	return &Registrar{store: store, cost: cost, now: now}
}

// Register creates a user with roles, or with [auth.DefaultRole] when roles
// is empty. A taken email fails with CONF_002.
func (r *Registrar) Register(ctx context.Context, email, password string, roles auth.RoleSet) (*users.User, error) {
	email = users.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, sserr.New(sserr.CodeValidationFormat, "email is not a valid address").WithDetail("field", "email")
	}
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return nil, sserr.Newf(sserr.CodeValidationFormat, "password must be %d to %d characters",
			MinPasswordLength, MaxPasswordLength).WithDetail("field", "password")
	}
	if len(roles) == 0 {
		roles = auth.RoleSet{auth.DefaultRole}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "issuer: failed to hash password")
	}
	u := &users.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
