package issuer

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Config controls token issuance and password hashing.
type Config struct {
	// ExpirationMS is the token lifetime in milliseconds. The exp claim is
	// rounded up to the next whole second, so a token never expires before
	// the lifetime has passed.
	ExpirationMS int64 `env:"JWT_EXPIRATION_MS" envDefault:"86400000" yaml:"expiration_ms" json:"expiration_ms"`

	// RolesClaim names the claim carrying the role list. The gateway's
	// validator must use the same name.
	RolesClaim string `env:"JWT_ROLES_CLAIM" envDefault:"roles" yaml:"roles_claim" json:"roles_claim"`

	// Issuer is written to the iss claim when set.
	Issuer string `env:"JWT_ISSUER" yaml:"issuer" json:"issuer,omitempty"`

	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10" yaml:"bcrypt_cost" json:"bcrypt_cost"`
	JWKSMaxAge time.Duration `env:"JWKS_MAX_AGE" envDefault:"5m" yaml:"jwks_max_age" json:"jwks_max_age"`
}

// Lifetime returns the token lifetime.
func (c *Config) Lifetime() time.Duration {
	return time.Duration(c.ExpirationMS) * time.Millisecond
}

// Validate checks the lifetime and bcrypt cost.
func (c *Config) Validate() error {
	if c.ExpirationMS <= 0 {
		return sserr.New(sserr.CodeValidation, "issuer: JWT_EXPIRATION_MS must be positive")
	}
	if c.RolesClaim == "" {
		c.RolesClaim = "roles"
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return sserr.Newf(sserr.CodeValidation, "issuer: BCRYPT_COST must be between %d and %d",
			bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}
