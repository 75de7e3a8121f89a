package validator

import (
	"net/url"
	"time"

	"github.com/bytebites/bytebites-core/pkg/config"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Key acquisition modes. Exactly one is active per process.
const (
	ModeJWKS   = "jwks"
	ModeStatic = "static"
)

// Config selects and tunes the validation strategy.
type Config struct {
	Mode string `env:"VALIDATOR_MODE" envDefault:"jwks" yaml:"mode" json:"mode"`

	// JWKS mode.
	JWKSURI            string        `env:"JWKS_URI" yaml:"jwks_uri" json:"jwks_uri"`
	CacheTTL           time.Duration `env:"JWKS_CACHE_TTL" envDefault:"5m" yaml:"cache_ttl" json:"cache_ttl"`
	MinRefreshInterval time.Duration `env:"JWKS_MIN_REFRESH_INTERVAL" envDefault:"10s" yaml:"min_refresh_interval" json:"min_refresh_interval"`
	FetchTimeout       time.Duration `env:"JWKS_FETCH_TIMEOUT" envDefault:"5s" yaml:"fetch_timeout" json:"fetch_timeout"`
	RetryBackoff       time.Duration `env:"JWKS_RETRY_BACKOFF" envDefault:"200ms" yaml:"retry_backoff" json:"retry_backoff"`

	// Static mode: one of these.
	StaticHMACSecret config.Secret `env:"STATIC_HMAC_SECRET" yaml:"static_hmac_secret" json:"-"`
	StaticPublicKey  string        `env:"STATIC_PUBLIC_KEY" yaml:"static_public_key" json:"static_public_key"`

	// RolesClaim must match the issuer's JWT_ROLES_CLAIM.
	RolesClaim string `env:"JWT_ROLES_CLAIM" envDefault:"roles" yaml:"roles_claim" json:"roles_claim"`

	// Issuer, when set, must equal the token's iss claim.
	Issuer string `env:"JWT_ISSUER" yaml:"issuer" json:"issuer"`
}

// Validate checks that the selected mode is fully configured and that no
// material for the other mode is present.
func (c *Config) Validate() error {
	if c.RolesClaim == "" {
		c.RolesClaim = DefaultRolesClaim
	}
	staticSet := c.StaticHMACSecret != "" || c.StaticPublicKey != ""

	switch c.Mode {
	case ModeJWKS, "":
		c.Mode = ModeJWKS
		if staticSet {
			return sserr.New(sserr.CodeValidation,
				"validator: static key material is set but VALIDATOR_MODE is jwks")
		}
		u, err := url.Parse(c.JWKSURI)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return sserr.New(sserr.CodeValidationFormat,
				"validator: JWKS_URI must be an absolute http(s) URL")
		}
		if c.FetchTimeout <= 0 || c.CacheTTL <= 0 {
			return sserr.New(sserr.CodeValidation,
				"validator: JWKS fetch timeout and cache TTL must be positive")
		}
	case ModeStatic:
		if c.JWKSURI != "" {
			return sserr.New(sserr.CodeValidation,
				"validator: JWKS_URI is set but VALIDATOR_MODE is static")
		}
		if (c.StaticHMACSecret == "") == (c.StaticPublicKey == "") {
			return sserr.New(sserr.CodeValidation,
				"validator: static mode needs exactly one of STATIC_HMAC_SECRET or STATIC_PUBLIC_KEY")
		}
	default:
		return sserr.Newf(sserr.CodeValidationFormat,
			"validator: unknown VALIDATOR_MODE %q", c.Mode)
	}
	return nil
}
