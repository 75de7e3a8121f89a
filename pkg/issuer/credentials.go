package issuer

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/users"
)

// dummyPassword is hashed once per verifier so that unknown emails cost the
// same bcrypt comparison as known ones.
const dummyPassword = "bytebites-no-such-user"

// CredentialVerifier checks email/password pairs against the user store.
type CredentialVerifier struct {
	store     users.Store
	dummyHash []byte
}

// NewCredentialVerifier returns a verifier. cost must match the cost used
// at registration so that both paths take the same time.
func NewCredentialVerifier(store users.Store, cost int) (*CredentialVerifier, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "issuer: failed to prepare verifier")
	}
	return &CredentialVerifier{store: store, dummyHash: hash}, nil
}

// Verify returns the identity for a matching pair. Unknown emails and wrong
// passwords both fail with AUTH_007; store failures pass through.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (auth.Identity, error) {
	u, err := v.store.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if sserr.HasCode(err, sserr.CodeNotFoundUser) {
			_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
			return auth.Identity{}, sserr.InvalidCredentials()
		}
		return auth.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return auth.Identity{}, sserr.InvalidCredentials()
	}
	return u.Identity(), nil
}
