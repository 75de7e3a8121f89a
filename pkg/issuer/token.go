package issuer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/keys"
)

// Token is a signed access token.
type Token struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints RS256 tokens with the provider's key. Every token
// carries sub, the roles claim (bare names), iat, exp and jti, plus iss
// when configured. The kid header names the signing key.
type TokenIssuer struct {
	keys       *keys.Provider
	lifetime   time.Duration
	rolesClaim string
	issuer     string
	now        func() time.Time
}

// NewTokenIssuer returns an issuer. A nil now uses time.Now.
func NewTokenIssuer(p *keys.Provider, cfg Config, now func() time.Time) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		keys:       p,
		lifetime:   cfg.Lifetime(),
		rolesClaim: cfg.RolesClaim,
		issuer:     cfg.Issuer,
		now:        now,
	}, nil
}

// Lifetime returns the configured token lifetime.
func (i *TokenIssuer) Lifetime() time.Duration { return i.lifetime }

// Issue signs a token for id.
func (i *TokenIssuer) Issue(id auth.Identity) (*Token, error) {
	if !id.Valid() {
		return nil, sserr.New(sserr.CodeValidationRequired, "issuer: identity has no subject")
	}
	// JWT times have second precision. iat is truncated and exp rounded up,
	// so the token lives at least the configured lifetime and the returned
	// times match what a validator reads back.
	issued := i.now()
	now := issued.Truncate(time.Second)
	exp := ceilSecond(issued.Add(i.lifetime))
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"sub":        id.Subject,
		i.rolesClaim: id.Roles.Names(),
		"iat":        now.Unix(),
		"exp":        exp.Unix(),
		"jti":        jti,
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.keys.KeyID()
	signed, err := tok.SignedString(i.keys.SigningKey())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "issuer: failed to sign token")
	}
	return &Token{Value: signed, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

func ceilSecond(t time.Time) time.Time {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		return r.Add(time.Second)
	}
	return t
}
