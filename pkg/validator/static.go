package validator

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/keys"
)

// MinHMACSecretBytes is the shortest accepted HMAC secret.
const MinHMACSecretBytes = 32

// StaticValidator verifies tokens against one configured key: either a
// shared HMAC secret (HS256/384/512) or an RSA public key (RS256).
type StaticValidator struct {
	core
	key any
}

// NewStatic builds a StaticValidator from cfg.StaticHMACSecret or
// cfg.StaticPublicKey. Malformed key material yields a KEY_001 error.
func NewStatic(cfg Config, opts ...Option) (*StaticValidator, error) {
	o := buildOptions(opts)
	rolesClaim := cfg.RolesClaim
	if rolesClaim == "" {
		rolesClaim = DefaultRolesClaim
	}
	v := &StaticValidator{core: core{
		mode:       ModeStatic,
		rolesClaim: rolesClaim,
		issuer:     cfg.Issuer,
		now:        o.now,
		tracer:     o.tracer,
	}}

	switch {
	case cfg.StaticHMACSecret != "" && cfg.StaticPublicKey != "":
		return nil, sserr.KeyLoad(nil, "validator: configure either an HMAC secret or a public key, not both")
	case cfg.StaticHMACSecret != "":
		secret, err := decodeSecret(cfg.StaticHMACSecret.Value())
		if err != nil {
			return nil, err
		}
		v.key = secret
		v.methods = []string{
			jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg(),
		}
	case cfg.StaticPublicKey != "":
		pub, err := keys.ParsePublicKey(cfg.StaticPublicKey)
		if err != nil {
			return nil, err
		}
		v.key = pub
		v.methods = []string{jwt.SigningMethodRS256.Alg()}
	default:
		return nil, sserr.KeyLoad(nil, "validator: no static key configured")
	}
	return v, nil
}

func decodeSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var (
		secret []byte
		err    error
	)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if secret, err = enc.DecodeString(s); err == nil {
			break
		}
	}
	if err != nil {
		return nil, sserr.KeyLoad(err, "validator: HMAC secret is not valid base64")
	}
	if len(secret) < MinHMACSecretBytes {
		return nil, sserr.KeyLoad(nil, "validator: HMAC secret is too short").
			WithDetail("bytes", len(secret)).WithDetail("min_bytes", MinHMACSecretBytes)
	}
	return secret, nil
}

// Validate implements [auth.TokenValidator].
func (v *StaticValidator) Validate(ctx context.Context, token string) (*auth.Claims, error) {
	return v.validate(ctx, token, func(context.Context) jwt.Keyfunc {
		return func(*jwt.Token) (any, error) { return v.key, nil }
	})
}

var _ auth.TokenValidator = (*StaticValidator)(nil)
