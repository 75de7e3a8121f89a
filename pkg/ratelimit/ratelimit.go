// Package ratelimit provides fixed-window attempt counters. The auth service
// uses them to throttle logins per email address.
package ratelimit

import (
	"context"
	"time"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Limiter counts attempts per key within a fixed window.
type Limiter interface {
	// Allow records one attempt for key and reports whether it fits the
	// window.
	Allow(ctx context.Context, key string) (Decision, error)

	// Reset clears the count for key.
	Reset(ctx context.Context, key string) error
}

// Config sets the window. A Limit of zero or less disables limiting.
type Config struct {
	Limit   int           `env:"LOGIN_RATE_LIMIT" envDefault:"10" yaml:"limit" json:"limit"`
	Window  time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m" yaml:"window" json:"window"`
	MaxKeys int           `env:"LOGIN_RATE_MAX_KEYS" envDefault:"10000" yaml:"max_keys" json:"max_keys"`
}

// Validate rejects a non-positive window when limiting is enabled.
func (c *Config) Validate() error {
	if c.Limit > 0 && c.Window <= 0 {
		return sserr.New(sserr.CodeValidation, "ratelimit: window must be positive")
	}
	return nil
}

// Exceeded returns the RATE_001 error for a denied decision. The
// retry_after detail is in whole seconds, rounded up.
func Exceeded(d Decision, now time.Time) *sserr.Error {
	wait := d.RetryAfter(now)
	secs := int(wait / time.Second)
	if wait%time.Second != 0 {
		secs++
	}
	return sserr.RateLimited("too many attempts, try again later").
		WithDetail("limit", d.Limit).
		WithDetail("retry_after", secs)
}
